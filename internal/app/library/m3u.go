package library

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
)

// IsPlaylistFile reports whether path is an M3U playlist.
func IsPlaylistFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return true
	}
	return false
}

// ReadM3U returns the entries of an M3U playlist.
// Comment and directive lines are ignored; relative entries are resolved
// against the playlist's directory.
func ReadM3U(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Mark(err, failure.ErrBackendIO, "open playlist")
	}
	defer f.Close()

	entries, err := ParseM3U(f, filepath.Dir(path))
	if err != nil {
		return nil, failure.Mark(err, failure.ErrBackendIO, "read playlist "+path)
	}
	return entries, nil
}

// ParseM3U reads M3U entries from r, resolving relative entries against baseDir.
func ParseM3U(r io.Reader, baseDir string) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = filepath.FromSlash(entryPath(line))
		if !filepath.IsAbs(line) {
			line = filepath.Join(baseDir, line)
		}
		entries = append(entries, filepath.Clean(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// entryPath returns the file path of an entry, decoding file: URLs.
func entryPath(entry string) string {
	if !strings.HasPrefix(strings.ToLower(entry), "file:") {
		return entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return entry
	}
	if u.Opaque != "" {
		if p, err := url.PathUnescape(u.Opaque); err == nil {
			return p
		}
		return u.Opaque
	}
	p := u.Path
	// file:///C:/Music/a.mp3
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}

// WriteM3U writes tracks as an extended M3U playlist.
func WriteM3U(w io.Writer, tracks []track.Track) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "#EXTM3U"); err != nil {
		return err
	}
	for _, t := range tracks {
		seconds := -1
		if t.Duration > 0 {
			seconds = int(t.Duration.Seconds())
		}
		label := t.DisplayTitle()
		if t.Artist != "" {
			label = t.Artist + " - " + label
		}
		if _, err := fmt.Fprintf(bw, "#EXTINF:%d,%s\n%s\n", seconds, label, t.Path); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveM3U writes tracks to an M3U playlist file. The file is replaced
// atomically, so a failed save leaves any previous playlist intact.
func SaveM3U(path string, tracks []track.Track) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return WriteM3U(w, tracks)
	})
}

// writeFileAtomic writes a temp file next to path and renames it over path.
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".groovebox-playlist-*")
	if err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "create playlist")
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return failure.Mark(err, failure.ErrBackendIO, "write playlist")
	}
	if err := tmp.Close(); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "close playlist")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "replace playlist")
	}
	return nil
}
