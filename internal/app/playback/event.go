package playback

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged    EventType = iota // Current track changed (index or playlist)
	EventStateChanged                     // Playing/paused/stopped changed
	EventPositionTick                     // Periodic position update while playing
	EventSeeked                           // Position changed by a seek or restart
	EventVolumeChanged                    // Volume changed
	EventModeChanged                      // Shuffle or repeat changed
	EventPlaylistChanged                  // Playlist contents changed
	EventTrackFinished                    // Backend reported the end of the current track
	EventTrackFailed                      // A track could not be opened or played
	EventPlaylistEnded                    // Playback reached the end with repeat off
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventPositionTick:
		return "position_tick"
	case EventSeeked:
		return "seeked"
	case EventVolumeChanged:
		return "volume_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventPlaylistChanged:
		return "playlist_changed"
	case EventTrackFinished:
		return "track_finished"
	case EventTrackFailed:
		return "track_failed"
	case EventPlaylistEnded:
		return "playlist_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Status Status // Controller snapshot taken when the event was emitted
	Index  int    // Playlist index the event refers to (TrackFailed), otherwise Status.Index
	Err    error  // Failure cause (TrackFailed only)
}
