// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Playlist is an ordered collection of tracks with unique paths.
// It is not safe for concurrent use; the playback controller owns it.
type Playlist struct {
	tracks []track.Track
}

// New creates a playlist from tracks, dropping duplicate paths.
func New(tracks ...track.Track) *Playlist {
	p := &Playlist{tracks: make([]track.Track, 0, len(tracks))}
	p.Add(tracks...)
	return p
}

// Add appends tracks whose path is not already present.
// Returns the number of tracks added.
func (p *Playlist) Add(tracks ...track.Track) int {
	added := 0
	for _, t := range tracks {
		if p.IndexOf(t.Path) >= 0 {
			continue
		}
		p.tracks = append(p.tracks, t)
		added++
	}
	return added
}

// Remove removes the track at index.
// Returns false if index is out of bounds.
func (p *Playlist) Remove(index int) bool {
	if !p.Valid(index) {
		return false
	}
	p.tracks = append(p.tracks[:index], p.tracks[index+1:]...)
	return true
}

// Move moves the track at from to position to.
// Returns false if either index is out of bounds.
func (p *Playlist) Move(from, to int) bool {
	if !p.Valid(from) || !p.Valid(to) {
		return false
	}
	if from == to {
		return true
	}

	t := p.tracks[from]
	p.tracks = append(p.tracks[:from], p.tracks[from+1:]...)
	p.tracks = append(p.tracks[:to], append([]track.Track{t}, p.tracks[to:]...)...)
	return true
}

// Clear removes all tracks.
func (p *Playlist) Clear() {
	p.tracks = p.tracks[:0]
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// Valid reports whether index addresses a track.
func (p *Playlist) Valid(index int) bool {
	return index >= 0 && index < len(p.tracks)
}

// Track returns the track at index, or nil if out of bounds.
func (p *Playlist) Track(index int) *track.Track {
	if !p.Valid(index) {
		return nil
	}
	return &p.tracks[index]
}

// IndexOf returns the index of the track with the given path, or -1.
func (p *Playlist) IndexOf(path string) int {
	for i, t := range p.tracks {
		if t.Path == path {
			return i
		}
	}
	return -1
}

// Tracks returns a copy of all tracks.
func (p *Playlist) Tracks() []track.Track {
	result := make([]track.Track, len(p.tracks))
	copy(result, p.tracks)
	return result
}

// Paths returns all track paths in order.
func (p *Playlist) Paths() []string {
	paths := make([]string, len(p.tracks))
	for i, t := range p.tracks {
		paths[i] = t.Path
	}
	return paths
}

// TotalDuration returns the summed duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.tracks {
		total += t.Duration
	}
	return total
}
