// Package audio provides the beep-based playback backend.
package audio

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/groovebox/internal/domain/failure"
)

// decode opens path and returns a seekable stream for it.
// A missing or unreadable file is ErrBackendIO; an unknown extension or a
// stream the decoder rejects is ErrUnsupportedFormat.
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3", ".wav", ".flac", ".ogg":
	default:
		return nil, beep.Format{}, errors.Wrapf(failure.ErrUnsupportedFormat, "extension %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, failure.Mark(err, failure.ErrBackendIO, "open audio file")
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, failure.Mark(err, failure.ErrUnsupportedFormat, "decode "+filepath.Base(path))
	}
	return streamer, format, nil
}

// Probe returns the playing time of an audio file.
func Probe(path string) (time.Duration, error) {
	streamer, format, err := decode(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}

// Prober adapts Probe to the library's duration prober.
type Prober struct{}

// Probe implements library.DurationProber.
func (Prober) Probe(path string) (time.Duration, error) {
	return Probe(path)
}
