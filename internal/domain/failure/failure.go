// Package failure defines the player's error taxonomy.
//
// Lower layers attach a sentinel to their own cause with errors.Mark so that
// callers can classify with errors.Is while keeping the original message.
package failure

import "github.com/cockroachdb/errors"

var (
	ErrEmptyPlaylist     = errors.New("playlist is empty")
	ErrNotPlaying        = errors.New("not playing")
	ErrInvalidRange      = errors.New("invalid range")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMetadataRead      = errors.New("metadata read failed")
	ErrBackendIO         = errors.New("backend I/O failure")
)

// Mark attaches the sentinel kind to err, wrapping it with msg.
func Mark(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), kind)
}

// Code returns a stable short code for err, used in user-facing messages.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyPlaylist):
		return "empty_playlist"
	case errors.Is(err, ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrMetadataRead):
		return "metadata_read"
	case errors.Is(err, ErrBackendIO):
		return "backend_io"
	default:
		return "internal"
	}
}
