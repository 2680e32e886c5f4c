// Package tags reads audio file metadata with github.com/dhowden/tag.
package tags

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"

	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
)

// ErrNoPicture is returned when a file carries no embedded picture.
var ErrNoPicture = errors.New("no embedded picture")

// Picture is an embedded cover image.
type Picture struct {
	MIMEType string
	Data     []byte
}

// Reader reads ID3, MP4, FLAC and Ogg tags.
type Reader struct{}

// NewReader creates a tag reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read returns the title, artist and album of the file at path.
// Every failure is marked failure.ErrMetadataRead.
func (r *Reader) Read(path string) (track.Metadata, error) {
	m, err := readTags(path)
	if err != nil {
		return track.Metadata{}, err
	}

	return track.Metadata{
		Title:      strings.TrimSpace(m.Title()),
		Artist:     strings.TrimSpace(firstNonEmpty(m.Artist(), m.AlbumArtist())),
		Album:      strings.TrimSpace(m.Album()),
		HasPicture: m.Picture() != nil && len(m.Picture().Data) > 0,
	}, nil
}

// Picture returns the embedded picture of the file at path.
func (r *Reader) Picture(path string) (*Picture, error) {
	m, err := readTags(path)
	if err != nil {
		return nil, err
	}
	p := m.Picture()
	if p == nil || len(p.Data) == 0 {
		return nil, ErrNoPicture
	}
	return &Picture{MIMEType: p.MIMEType, Data: p.Data}, nil
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Mark(err, failure.ErrMetadataRead, "failed to open file")
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, failure.Mark(err, failure.ErrMetadataRead, "failed to read tags of "+path)
	}
	return m, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
