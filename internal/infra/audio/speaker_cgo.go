//go:build (linux && cgo) || windows || darwin

package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// OutputAvailable indicates whether this build can drive a sound device.
const OutputAvailable = true

// SpeakerSink plays through the system sound device.
type SpeakerSink struct {
	BufferDuration time.Duration // Output buffer length (0 uses 100ms)
}

// NewSpeakerSink creates a sink for the system sound device.
func NewSpeakerSink() *SpeakerSink {
	return &SpeakerSink{}
}

func (s *SpeakerSink) Init(sampleRate beep.SampleRate) error {
	buffer := s.BufferDuration
	if buffer <= 0 {
		buffer = time.Second / 10
	}
	return speaker.Init(sampleRate, sampleRate.N(buffer))
}

func (s *SpeakerSink) Play(st beep.Streamer) {
	speaker.Play(st)
}

func (s *SpeakerSink) Lock() {
	speaker.Lock()
}

func (s *SpeakerSink) Unlock() {
	speaker.Unlock()
}
