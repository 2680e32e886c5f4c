package audio

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/domain/failure"
)

const (
	// DefaultSampleRate is the output sample rate.
	DefaultSampleRate = 44100
	// resampleQuality is the beep resampling quality (1-64).
	resampleQuality = 4
	// finishedBuffer is the capacity of the completion channel.
	finishedBuffer = 16
)

// Sink is the audio output the backend plays into.
type Sink interface {
	// Init prepares the output for the given sample rate. Called once.
	Init(sampleRate beep.SampleRate) error
	// Play adds a streamer to the output mix.
	Play(s beep.Streamer)
	// Lock and Unlock guard streamers that are being mixed.
	Lock()
	Unlock()
}

// voice is one opened track.
type voice struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
}

// Backend plays tracks through a Sink.
// It implements playback.Backend.
type Backend struct {
	mu sync.Mutex

	sink        Sink
	sampleRate  beep.SampleRate
	initialized bool

	voices   map[playback.Handle]*voice
	nextID   playback.Handle
	finished chan playback.Handle
}

// NewBackend creates a backend that outputs to sink at sampleRate (0 uses the default).
func NewBackend(sink Sink, sampleRate int) *Backend {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Backend{
		sink:       sink,
		sampleRate: beep.SampleRate(sampleRate),
		voices:     make(map[playback.Handle]*voice),
		finished:   make(chan playback.Handle, finishedBuffer),
	}
}

// Open decodes path and prepares it for playback, paused at the start.
func (b *Backend) Open(path string) (playback.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		if err := b.sink.Init(b.sampleRate); err != nil {
			return 0, failure.Mark(err, failure.ErrBackendIO, "initialize audio output")
		}
		b.initialized = true
	}

	streamer, format, err := decode(path)
	if err != nil {
		return 0, err
	}

	var out beep.Streamer = streamer
	if format.SampleRate != b.sampleRate {
		out = beep.Resample(resampleQuality, format.SampleRate, b.sampleRate, streamer)
	}
	vol := &effects.Volume{Streamer: out, Base: 2}
	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}

	b.nextID++
	id := b.nextID
	b.voices[id] = &voice{
		streamer: streamer,
		format:   format,
		ctrl:     ctrl,
		volume:   vol,
	}

	b.sink.Play(beep.Seq(ctrl, beep.Callback(func() {
		// Runs on the output goroutine with the sink locked
		go b.complete(id)
	})))

	zlog.Debug().Msgf("audio: opened %s: handle=%d rate=%d channels=%d", path, id, format.SampleRate, format.NumChannels)
	return id, nil
}

// Play resumes the voice.
func (b *Backend) Play(h playback.Handle) error {
	return b.withVoice(h, func(v *voice) error {
		v.ctrl.Paused = false
		return nil
	})
}

// Pause pauses the voice.
func (b *Backend) Pause(h playback.Handle) error {
	return b.withVoice(h, func(v *voice) error {
		v.ctrl.Paused = true
		return nil
	})
}

// Stop releases the voice. Stopping an unknown handle is a no-op.
func (b *Backend) Stop(h playback.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopLocked(h)
}

// Seek moves the voice to position, clamped to the stream length.
func (b *Backend) Seek(h playback.Handle, position time.Duration) error {
	return b.withVoice(h, func(v *voice) error {
		n := v.format.SampleRate.N(position)
		n = max(0, min(n, v.streamer.Len()))
		if err := v.streamer.Seek(n); err != nil {
			return errors.Wrap(err, "seek")
		}
		return nil
	})
}

// SetVolume sets the voice volume from a 0-100 level.
func (b *Backend) SetVolume(h playback.Handle, level int) error {
	return b.withVoice(h, func(v *voice) error {
		v.volume.Silent, v.volume.Volume = volumeFor(level)
		return nil
	})
}

// Position returns the voice position, or 0 for an unknown handle.
func (b *Backend) Position(h playback.Handle) time.Duration {
	var pos time.Duration
	_ = b.withVoice(h, func(v *voice) error {
		pos = v.format.SampleRate.D(v.streamer.Position())
		return nil
	})
	return pos
}

// Finished returns the channel completed handles are sent on.
func (b *Backend) Finished() <-chan playback.Handle {
	return b.finished
}

// Close releases every voice.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h := range b.voices {
		_ = b.stopLocked(h)
	}
}

// withVoice runs fn on the voice for h while the sink is locked.
func (b *Backend) withVoice(h playback.Handle, fn func(v *voice) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.voices[h]
	if !ok {
		return errors.Wrapf(failure.ErrBackendIO, "unknown handle %d", h)
	}
	b.sink.Lock()
	defer b.sink.Unlock()
	return fn(v)
}

// stopLocked detaches the voice from the mix and closes its stream.
// Must be called with lock held.
func (b *Backend) stopLocked(h playback.Handle) error {
	v, ok := b.voices[h]
	if !ok {
		return nil
	}
	delete(b.voices, h)

	b.sink.Lock()
	v.ctrl.Streamer = nil
	b.sink.Unlock()

	if err := v.streamer.Close(); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "close stream")
	}
	return nil
}

// complete reports that h played to its end.
func (b *Backend) complete(h playback.Handle) {
	b.mu.Lock()
	_, ok := b.voices[h]
	b.mu.Unlock()
	if !ok {
		// Stopped before it ended
		return
	}

	select {
	case b.finished <- h:
	default:
		zlog.Warn().Msgf("audio: completion channel full, dropping handle %d", h)
	}
}

// volumeFor maps a 0-100 level to beep's base-2 volume.
// 100 is unity gain, 50 halves the amplitude, 0 is silent.
func volumeFor(level int) (silent bool, volume float64) {
	if level <= 0 {
		return true, 0
	}
	level = min(level, playback.MaxVolume)
	return false, math.Log2(float64(level) / float64(playback.MaxVolume))
}
