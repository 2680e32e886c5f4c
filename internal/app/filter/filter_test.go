package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/domain/track"
)

// stubFilter records whether it was called and returns a fixed result.
type stubFilter struct {
	name   string
	result Result
	called bool
}

func (f *stubFilter) Name() string                        { return f.name }
func (f *stubFilter) Description() string                 { return "stub" }
func (f *stubFilter) ReturnCodes() []string               { return []string{f.result.Code} }
func (f *stubFilter) ValidateConfig(map[string]any) error { return nil }
func (f *stubFilter) Check(context.Context, Query, track.Track) Result {
	f.called = true
	return f.result
}

func TestChain_Execute(t *testing.T) {
	tests := []struct {
		name       string
		results    []Result
		wantResult Result
		wantCalled []bool
	}{
		{
			name:       "empty chain accepts",
			wantResult: Accept(),
		},
		{
			name:       "all accept",
			results:    []Result{Accept(), Accept()},
			wantResult: Accept(),
			wantCalled: []bool{true, true},
		},
		{
			name:       "first rejection wins",
			results:    []Result{Accept(), Reject("first"), Reject("second")},
			wantResult: Reject("first"),
			wantCalled: []bool{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewChain()
			stubs := make([]*stubFilter, len(tt.results))
			for i, r := range tt.results {
				stubs[i] = &stubFilter{name: "stub", result: r}
				chain.Add(stubs[i])
			}

			result := chain.Execute(context.Background(), Query{}, track.Track{})
			assert.Equal(t, tt.wantResult, result)
			for i, s := range stubs {
				assert.Equal(t, tt.wantCalled[i], s.called, "filter %d", i)
			}
		})
	}
}

func TestChain_Select(t *testing.T) {
	tracks := []track.Track{
		{Path: "/music/queen/bohemian.mp3", Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"},
		{Path: "/music/beatles/yesterday.flac", Title: "Yesterday", Artist: "The Beatles", Album: "Help!"},
		{Path: "/music/misc/untitled_demo.wav"},
	}
	chain := NewChain(NewQueryFilter())

	tests := []struct {
		name  string
		query string
		want  []int
	}{
		{name: "empty query matches all", query: "", want: []int{0, 1, 2}},
		{name: "title", query: "yesterday", want: []int{1}},
		{name: "case insensitive artist", query: "QUEEN", want: []int{0}},
		{name: "album", query: "opera", want: []int{0}},
		{name: "file name of untagged track", query: "demo", want: []int{2}},
		{name: "every term must match", query: "queen yesterday", want: []int{}},
		{name: "terms across fields", query: "beatles help", want: []int{1}},
		{name: "no match", query: "zeppelin", want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chain.Select(context.Background(), Query{Text: tt.query}, tracks)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChain_Names(t *testing.T) {
	chain := NewChain(NewQueryFilter(), NewDuplicateTrackFilter())
	assert.Equal(t, []string{"query_filter", "duplicate_track_filter"}, chain.Names())
	assert.Len(t, chain.Filters(), 2)
}

func TestRegistry(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "query_filter")
	assert.Contains(t, names, "duration_limit_filter")
	assert.Contains(t, names, "extension_filter")
	assert.Contains(t, names, "duplicate_track_filter")
	assert.IsIncreasing(t, names)

	for name, factory := range GetRegistered() {
		assert.Equal(t, name, factory().Name())
	}
}

func TestNew(t *testing.T) {
	f, err := New("duration_limit_filter", map[string]any{"max_minutes": 4})
	require.NoError(t, err)
	assert.False(t, f.Check(context.Background(), Query{}, track.Track{Duration: 5 * time.Minute}).Accepted)

	_, err = New("no_such_filter", nil)
	assert.Error(t, err)

	_, err = New("duration_limit_filter", map[string]any{"max_minutes": -3})
	assert.Error(t, err)
}

func TestExtensionFilter(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		path     string
		want     bool
	}{
		{name: "default allows mp3", settings: nil, path: "a.mp3", want: true},
		{name: "default rejects m4a", settings: nil, path: "a.m4a", want: false},
		{name: "case insensitive", settings: nil, path: "A.FLAC", want: true},
		{name: "custom list without dots", settings: map[string]any{"allowed": []any{"ogg"}}, path: "a.ogg", want: true},
		{name: "custom list rejects others", settings: map[string]any{"allowed": []any{".ogg"}}, path: "a.mp3", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewExtensionFilter()
			require.NoError(t, f.ValidateConfig(tt.settings))

			result := f.Check(context.Background(), Query{}, track.Track{Path: tt.path})
			assert.Equal(t, tt.want, result.Accepted)
			if !tt.want {
				assert.Equal(t, "extension_not_allowed", result.Code)
			}
		})
	}
}

func TestExtensionFilter_Unconfigured(t *testing.T) {
	f := NewExtensionFilter()
	assert.True(t, f.Check(context.Background(), Query{}, track.Track{Path: "a.xyz"}).Accepted)
}
