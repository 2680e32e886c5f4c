//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
)

// OutputAvailable indicates whether this build can drive a sound device.
// Sound output on Linux needs cgo for the ALSA bindings.
const OutputAvailable = false

// SpeakerSink reports that no sound device is available in this build.
type SpeakerSink struct {
	BufferDuration time.Duration
}

// NewSpeakerSink creates a sink that cannot be initialized.
func NewSpeakerSink() *SpeakerSink {
	return &SpeakerSink{}
}

func (s *SpeakerSink) Init(beep.SampleRate) error {
	return errors.New("audio output requires a cgo build")
}

func (s *SpeakerSink) Play(beep.Streamer) {}

func (s *SpeakerSink) Lock() {}

func (s *SpeakerSink) Unlock() {}
