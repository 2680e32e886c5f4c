package library

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
)

func TestParseM3U(t *testing.T) {
	base := filepath.FromSlash("/music/lists")
	input := "\ufeff#EXTM3U\n" +
		"#EXTINF:180,Artist - Song\n" +
		"song.mp3\n" +
		"\n" +
		"  ../other/b.flac  \n" +
		"/abs/c.wav\n" +
		"file:///abs/d.ogg\n" +
		"file:///music/My%20Song.mp3\n" +
		"file://localhost/abs/e%23f.mp3\n"

	entries, err := ParseM3U(strings.NewReader(input), base)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.FromSlash("/music/lists/song.mp3"),
		filepath.FromSlash("/music/other/b.flac"),
		filepath.FromSlash("/abs/c.wav"),
		filepath.FromSlash("/abs/d.ogg"),
		filepath.FromSlash("/music/My Song.mp3"),
		filepath.FromSlash("/abs/e#f.mp3"),
	}, entries)
}

func TestIsPlaylistFile(t *testing.T) {
	assert.True(t, IsPlaylistFile("a.m3u"))
	assert.True(t, IsPlaylistFile("a.M3U8"))
	assert.False(t, IsPlaylistFile("a.mp3"))
	assert.False(t, IsPlaylistFile("m3u"))
}

func TestWriteM3U(t *testing.T) {
	var buf bytes.Buffer
	err := WriteM3U(&buf, []track.Track{
		{Path: "/music/a.mp3", Title: "Song A", Artist: "Artist", Duration: 185 * time.Second},
		{Path: "/music/b.flac"},
	})
	require.NoError(t, err)

	assert.Equal(t, "#EXTM3U\n"+
		"#EXTINF:185,Artist - Song A\n/music/a.mp3\n"+
		"#EXTINF:-1,b\n/music/b.flac\n", buf.String())
}

func TestSaveAndReadM3U(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.m3u8")
	tracks := []track.Track{
		{Path: filepath.Join(dir, "a.mp3"), Title: "A"},
		{Path: filepath.Join(dir, "sub", "b.wav"), Title: "B"},
	}

	require.NoError(t, SaveM3U(path, tracks))
	entries, err := ReadM3U(path)
	require.NoError(t, err)
	assert.Equal(t, []string{tracks[0].Path, tracks[1].Path}, entries)
}

func TestReadM3U_Missing(t *testing.T) {
	_, err := ReadM3U(filepath.Join(t.TempDir(), "missing.m3u"))
	assert.True(t, errors.Is(err, failure.ErrBackendIO))
}

func TestSaveM3U_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.m3u")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n/old/a.mp3\n/old/b.mp3\n"), 0o644))

	require.NoError(t, SaveM3U(path, []track.Track{{Path: "/new/c.mp3", Title: "C"}}))
	entries, err := ReadM3U(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("/new/c.mp3")}, entries)

	leftovers, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, leftovers, 1)
}

func TestSaveM3U_FailedWriteKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.m3u")
	original := []byte("#EXTM3U\n/old/a.mp3\n")
	require.NoError(t, os.WriteFile(path, original, 0o644))

	err := writeFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "#EXTM3U\n/half")
		return errors.New("disk full")
	})
	assert.True(t, errors.Is(err, failure.ErrBackendIO))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)

	leftovers, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, leftovers, 1)
}

func TestSaveM3U_MissingDirectory(t *testing.T) {
	err := SaveM3U(filepath.Join(t.TempDir(), "no", "such", "list.m3u"), nil)
	assert.True(t, errors.Is(err, failure.ErrBackendIO))
}
