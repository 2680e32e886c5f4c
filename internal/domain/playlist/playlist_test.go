package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/domain/track"
)

func tracks(paths ...string) []track.Track {
	result := make([]track.Track, len(paths))
	for i, p := range paths {
		result[i] = track.Track{Path: p}
	}
	return result
}

func TestPlaylist_Add(t *testing.T) {
	tests := []struct {
		name      string
		initial   []track.Track
		add       []track.Track
		wantAdded int
		expected  []string
	}{
		{
			name:      "empty playlist",
			initial:   nil,
			add:       tracks("a", "b"),
			wantAdded: 2,
			expected:  []string{"a", "b"},
		},
		{
			name:      "duplicates are skipped",
			initial:   tracks("a"),
			add:       tracks("a", "b", "b"),
			wantAdded: 1,
			expected:  []string{"a", "b"},
		},
		{
			name:      "nothing to add",
			initial:   tracks("a"),
			add:       nil,
			wantAdded: 0,
			expected:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.initial...)
			added := p.Add(tt.add...)
			assert.Equal(t, tt.wantAdded, added)
			assert.Equal(t, tt.expected, p.Paths())
		})
	}
}

func TestPlaylist_Remove(t *testing.T) {
	p := New(tracks("a", "b", "c")...)

	assert.False(t, p.Remove(-1))
	assert.False(t, p.Remove(3))
	assert.True(t, p.Remove(1))
	assert.Equal(t, []string{"a", "c"}, p.Paths())
}

func TestPlaylist_Move(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		ok       bool
		expected []string
	}{
		{name: "forward", from: 0, to: 2, ok: true, expected: []string{"b", "c", "a", "d"}},
		{name: "backward", from: 3, to: 1, ok: true, expected: []string{"a", "d", "b", "c"}},
		{name: "same index", from: 1, to: 1, ok: true, expected: []string{"a", "b", "c", "d"}},
		{name: "out of bounds", from: 0, to: 4, ok: false, expected: []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tracks("a", "b", "c", "d")...)
			assert.Equal(t, tt.ok, p.Move(tt.from, tt.to))
			assert.Equal(t, tt.expected, p.Paths())
		})
	}
}

func TestPlaylist_Lookup(t *testing.T) {
	p := New(tracks("a", "b")...)

	assert.Equal(t, 1, p.IndexOf("b"))
	assert.Equal(t, -1, p.IndexOf("z"))
	require.NotNil(t, p.Track(0))
	assert.Equal(t, "a", p.Track(0).Path)
	assert.Nil(t, p.Track(2))

	// Tracks returns a copy
	copied := p.Tracks()
	copied[0].Path = "mutated"
	assert.Equal(t, "a", p.Track(0).Path)

	p.Clear()
	assert.Equal(t, 0, p.Len())
}

func TestPlaylist_TotalDuration(t *testing.T) {
	p := New(
		track.Track{Path: "a", Duration: 2 * time.Minute},
		track.Track{Path: "b", Duration: 3*time.Minute + 30*time.Second},
	)
	assert.Equal(t, 5*time.Minute+30*time.Second, p.TotalDuration())
}
