// Package connect serves the player control API over Connect RPC.
//
// Messages use protobuf well-known types: requests carry wrappers,
// durations or structs, and snapshots travel as google.protobuf.Struct.
package connect

// ServiceName is the fully-qualified name of the player service.
const ServiceName = "groovebox.v1.PlayerService"

// Procedure paths.
const (
	PlayProcedure          = "/" + ServiceName + "/Play"
	PauseProcedure         = "/" + ServiceName + "/Pause"
	StopProcedure          = "/" + ServiceName + "/Stop"
	NextProcedure          = "/" + ServiceName + "/Next"
	PreviousProcedure      = "/" + ServiceName + "/Previous"
	SeekProcedure          = "/" + ServiceName + "/Seek"
	SetVolumeProcedure     = "/" + ServiceName + "/SetVolume"
	SetShuffleProcedure    = "/" + ServiceName + "/SetShuffle"
	SetRepeatProcedure     = "/" + ServiceName + "/SetRepeat"
	JumpToProcedure        = "/" + ServiceName + "/JumpTo"
	LoadProcedure          = "/" + ServiceName + "/Load"
	RemoveProcedure        = "/" + ServiceName + "/Remove"
	MoveProcedure          = "/" + ServiceName + "/Move"
	SearchProcedure        = "/" + ServiceName + "/Search"
	SearchLibraryProcedure = "/" + ServiceName + "/SearchLibrary"
	ListTracksProcedure    = "/" + ServiceName + "/ListTracks"
	GetStatusProcedure     = "/" + ServiceName + "/GetStatus"
	GetCoverProcedure      = "/" + ServiceName + "/GetCover"
	SavePlaylistProcedure  = "/" + ServiceName + "/SavePlaylist"
	SubscribeProcedure     = "/" + ServiceName + "/Subscribe"
)
