// Package playback provides the playback state controller.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/groovebox/internal/domain/failure"
)

// State represents the playback state.
type State int

const (
	StateStopped State = iota // Nothing playing; position rewound or held for the next play
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// IsActive returns true if a track is playing or paused.
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// RepeatMode defines what happens when a track or the playlist ends.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota // Stop at the end of the playlist
	RepeatOne                   // Loop the current track
	RepeatAll                   // Loop the playlist
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known repeat mode.
func (m RepeatMode) Valid() bool {
	return m >= RepeatOff && m <= RepeatAll
}

// ParseRepeatMode parses "off", "one" or "all" (case-insensitive).
// "none" is accepted as an alias for "off".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return RepeatOff, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	default:
		return RepeatOff, errors.Wrapf(failure.ErrInvalidRange, "unknown repeat mode %q", s)
	}
}
