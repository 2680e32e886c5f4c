// Package track provides the Track domain entity.
package track

import (
	"path/filepath"
	"strings"
	"time"
)

// CoverRef tells where a track's cover art can be found.
type CoverRef string

const (
	CoverNone     CoverRef = ""         // No cover art known
	CoverEmbedded CoverRef = "embedded" // Picture embedded in the file's tags
)

// Track represents a single playable audio file.
// A Track is immutable once loaded; replace it instead of mutating it.
type Track struct {
	Path     string        // File path, used as the track identifier
	Title    string        // Track title (empty if the tags had none)
	Artist   string        // Artist name
	Album    string        // Album name
	Duration time.Duration // Track duration (0 if unknown)
	Cover    CoverRef      // Cover art reference
}

// Metadata is the tag information read from an audio file.
type Metadata struct {
	Title      string
	Artist     string
	Album      string
	HasPicture bool
}

// ID returns the track identifier.
func (t *Track) ID() string {
	return t.Path
}

// DisplayTitle returns the title, falling back to the file name without extension.
func (t *Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return FallbackTitle(t.Path)
}

// Ext returns the lower-cased file extension including the dot.
func (t *Track) Ext() string {
	return strings.ToLower(filepath.Ext(t.Path))
}

// HasCover reports whether the track references cover art.
func (t *Track) HasCover() bool {
	return t.Cover != CoverNone
}

// FallbackTitle derives a display title from a file path.
func FallbackTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
