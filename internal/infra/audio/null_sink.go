package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// pumpChunk is the number of samples mixed per step.
const pumpChunk = 512

// NullSink mixes streams and discards the samples.
// With realtime set it consumes audio at playback speed, so a headless
// player still advances and finishes tracks; otherwise the caller drives it
// with Advance.
type NullSink struct {
	mu         sync.Mutex
	mixer      beep.Mixer
	sampleRate beep.SampleRate
	realtime   bool
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewNullSink creates a sink that discards output.
func NewNullSink(realtime bool) *NullSink {
	return &NullSink{
		realtime: realtime,
		stop:     make(chan struct{}),
	}
}

func (s *NullSink) Init(sampleRate beep.SampleRate) error {
	s.sampleRate = sampleRate
	if s.realtime {
		go s.run()
	}
	return nil
}

func (s *NullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Add(st)
}

func (s *NullSink) Lock() {
	s.mu.Lock()
}

func (s *NullSink) Unlock() {
	s.mu.Unlock()
}

// Advance mixes d worth of audio.
func (s *NullSink) Advance(d time.Duration) {
	buf := make([][2]float64, pumpChunk)
	for n := s.sampleRate.N(d); n > 0; {
		k := min(n, pumpChunk)
		s.mu.Lock()
		s.mixer.Stream(buf[:k])
		s.mu.Unlock()
		n -= k
	}
}

// Close stops realtime consumption.
func (s *NullSink) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *NullSink) run() {
	const step = 20 * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Advance(step)
		}
	}
}
