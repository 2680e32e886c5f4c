package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/domain/track"
)

// DuplicateTrackFilter rejects tracks that are already in the playlist.
// Detects:
// - the same file path
// - another file of the same song (normalized title + same artist), e.g. a remaster
// Cover songs (same title, different artist) are kept.
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already in the playlist, including other versions of the same song"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *DuplicateTrackFilter) ValidateConfig(map[string]any) error {
	return nil
}

func (f *DuplicateTrackFilter) Check(_ context.Context, q Query, t track.Track) Result {
	dup := lo.ContainsBy(q.Playlist, func(existing track.Track) bool {
		return existing.Path == t.Path || isSameSong(existing, t)
	})
	if dup {
		return Reject("duplicate_track")
	}
	return Accept()
}

// isSameSong reports whether two tracks are versions of the same song.
// Tracks without a title or artist tag are never considered the same song.
func isSameSong(a, b track.Track) bool {
	if a.Title == "" || b.Title == "" || a.Artist == "" || b.Artist == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(a.Artist), strings.TrimSpace(b.Artist)) {
		return false
	}
	return normalizeTitle(a.Title) == normalizeTitle(b.Title)
}

var (
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
		regexp.MustCompile(`\s*\(.*?version\)`),                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                     // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),                        // "(Live)"
		regexp.MustCompile(`\s*-\s*live$`),                       // "- Live"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),           // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTitle strips remaster and version details from a title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = spaces.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
