package playback

import "time"

// Handle identifies one opened track on the backend.
type Handle = uint64

// Backend is the audio engine the controller drives.
//
// Backend methods must not call back into the controller. Completion is
// reported by sending the finished handle on the Finished channel.
type Backend interface {
	Open(path string) (Handle, error)
	Play(h Handle) error
	Pause(h Handle) error
	Stop(h Handle) error
	Seek(h Handle, position time.Duration) error
	SetVolume(h Handle, level int) error
	Position(h Handle) time.Duration
	Finished() <-chan Handle
}
