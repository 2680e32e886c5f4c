// Package library turns files, directories and playlists on disk into tracks.
package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
)

// SupportedExtensions are the audio file extensions the player can decode.
var SupportedExtensions = []string{".mp3", ".flac", ".wav", ".ogg"}

// MetadataReader reads tags from an audio file.
type MetadataReader interface {
	Read(path string) (track.Metadata, error)
}

// DurationProber reports the playing time of an audio file.
type DurationProber interface {
	Probe(path string) (time.Duration, error)
}

// Skipped is a path that could not be turned into a track.
type Skipped struct {
	Path string
	Err  error
}

// Scanner builds tracks from files.
type Scanner struct {
	reader     MetadataReader
	prober     DurationProber
	extensions map[string]bool
}

// NewScanner creates a scanner. A nil reader or prober is skipped; tracks
// then carry no tags or an unknown duration.
func NewScanner(reader MetadataReader, prober DurationProber) *Scanner {
	return &Scanner{
		reader: reader,
		prober: prober,
		extensions: lo.SliceToMap(SupportedExtensions, func(ext string) (string, bool) {
			return ext, true
		}),
	}
}

// Supported reports whether path has a playable extension.
func (s *Scanner) Supported(path string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

// Scan walks root and returns a track for every playable file, sorted by path.
// Hidden directories are skipped. Files that cannot be decoded are reported
// in the skipped list.
func (s *Scanner) Scan(ctx context.Context, root string) ([]track.Track, []Skipped, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, failure.Mark(err, failure.ErrBackendIO, "scan library")
	}
	if !info.IsDir() {
		return nil, nil, errors.Wrapf(failure.ErrInvalidRange, "%s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			zlog.Warn().Msgf("library: cannot read %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "scan %s", root)
	}

	sort.Strings(paths)
	tracks, skipped, err := s.loadFiles(ctx, paths)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info().Msgf("library: scanned %s: tracks=%d skipped=%d", root, len(tracks), len(skipped))
	return tracks, skipped, nil
}

// LoadPaths loads files, directories and .m3u/.m3u8 playlists, keeping the
// given order and dropping repeated paths.
func (s *Scanner) LoadPaths(ctx context.Context, paths []string) ([]track.Track, []Skipped, error) {
	var (
		tracks  []track.Track
		skipped []Skipped
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		info, err := os.Stat(p)
		if err != nil {
			skipped = append(skipped, Skipped{Path: p, Err: failure.Mark(err, failure.ErrBackendIO, "stat")})
			continue
		}

		switch {
		case info.IsDir():
			found, dirSkipped, err := s.Scan(ctx, p)
			if err != nil {
				return nil, nil, err
			}
			tracks = append(tracks, found...)
			skipped = append(skipped, dirSkipped...)
		case IsPlaylistFile(p):
			entries, err := ReadM3U(p)
			if err != nil {
				skipped = append(skipped, Skipped{Path: p, Err: err})
				continue
			}
			found, entrySkipped, err := s.loadFiles(ctx, entries)
			if err != nil {
				return nil, nil, err
			}
			tracks = append(tracks, found...)
			skipped = append(skipped, entrySkipped...)
		default:
			t, err := s.LoadTrack(p)
			if err != nil {
				skipped = append(skipped, Skipped{Path: p, Err: err})
				continue
			}
			tracks = append(tracks, t)
		}
	}

	tracks = lo.UniqBy(tracks, func(t track.Track) string {
		return t.Path
	})
	return tracks, skipped, nil
}

// LoadTrack builds the track for one audio file.
// Unreadable tags are not fatal; the title then falls back to the file name.
func (s *Scanner) LoadTrack(path string) (track.Track, error) {
	if !s.Supported(path) {
		return track.Track{}, errors.Wrapf(failure.ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if _, err := os.Stat(path); err != nil {
		return track.Track{}, failure.Mark(err, failure.ErrBackendIO, "stat track")
	}

	t := track.Track{Path: path}

	if s.prober != nil {
		d, err := s.prober.Probe(path)
		if err != nil {
			return track.Track{}, err
		}
		t.Duration = d
	}

	if s.reader != nil {
		meta, err := s.reader.Read(path)
		if err != nil {
			zlog.Warn().Msgf("library: %v", err)
		} else {
			t.Title = meta.Title
			t.Artist = meta.Artist
			t.Album = meta.Album
			if meta.HasPicture {
				t.Cover = track.CoverEmbedded
			}
		}
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = track.FallbackTitle(path)
	}
	return t, nil
}

func (s *Scanner) loadFiles(ctx context.Context, paths []string) ([]track.Track, []Skipped, error) {
	tracks := make([]track.Track, 0, len(paths))
	var skipped []Skipped
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		t, err := s.LoadTrack(p)
		if err != nil {
			zlog.Warn().Msgf("library: skipping %s: %v", p, err)
			skipped = append(skipped, Skipped{Path: p, Err: err})
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, skipped, nil
}
