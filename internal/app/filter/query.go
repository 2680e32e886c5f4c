package filter

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/domain/track"
)

// QueryFilter matches tracks against free-text search terms.
// Every term must occur (case-insensitively) in the title, artist, album or
// file name. An empty query matches every track.
type QueryFilter struct{}

// NewQueryFilter creates a new query filter.
func NewQueryFilter() *QueryFilter {
	return &QueryFilter{}
}

func (f *QueryFilter) Name() string {
	return "query_filter"
}

func (f *QueryFilter) Description() string {
	return "Matches tracks whose title, artist, album or file name contain every search term"
}

func (f *QueryFilter) ReturnCodes() []string {
	return []string{"no_match"}
}

func (f *QueryFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *QueryFilter) Check(_ context.Context, q Query, t track.Track) Result {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return Accept()
	}

	haystack := strings.ToLower(strings.Join([]string{
		t.Title,
		t.Artist,
		t.Album,
		filepath.Base(t.Path),
	}, "\x00"))

	matched := lo.EveryBy(terms, func(term string) bool {
		return strings.Contains(haystack, term)
	})
	if !matched {
		return Reject("no_match")
	}
	return Accept()
}

func init() {
	Register("query_filter", func() Filter {
		return NewQueryFilter()
	})
}
