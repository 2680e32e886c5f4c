package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/playlist"
	"github.com/osa030/groovebox/internal/domain/track"
)

const (
	// DefaultVolume is the volume a new controller starts with.
	DefaultVolume = 50
	// MaxVolume is the upper volume bound.
	MaxVolume = 100

	defaultEventBuffer = 64
)

// Config holds controller configuration.
type Config struct {
	TickInterval             time.Duration // Position tick period while playing (0 disables ticks)
	PreviousRestartThreshold time.Duration // Previous restarts the track when further in than this (0 disables)
	Shuffle                  ShufflePolicy // Shuffle policy (nil uses a clock-seeded PassShuffler)
	EventBuffer              int           // Event channel capacity (0 uses the default)
}

// Status is a snapshot of the controller state.
type Status struct {
	State         State
	Index         int          // Current playlist index, -1 when the playlist is empty
	Track         *track.Track // Copy of the current track (nil when none)
	Position      time.Duration
	Duration      time.Duration // Duration of the current track (0 if unknown)
	Volume        int
	Shuffle       bool
	Repeat        RepeatMode
	PlaylistLen   int
	TotalDuration time.Duration
}

// Controller is the single authority for what is loaded and playing.
//
// All public methods are synchronous and serialized by one mutex. Backend
// completions are delivered through Run, which applies them on the same
// serialized path; completions for a handle that is no longer current are
// ignored.
type Controller struct {
	mu sync.Mutex

	backend  Backend
	playlist *playlist.Playlist

	// Playback state
	index    int
	position time.Duration
	state    State
	volume   int
	shuffle  bool
	repeat   RepeatMode

	// Backend handle; open exactly when state is playing or paused
	handle    Handle
	hasHandle bool

	shuffler ShufflePolicy
	config   Config

	eventCh chan Event
	closed  bool
}

// NewController creates a new playback controller with an empty playlist.
func NewController(backend Backend, config Config) *Controller {
	shuffler := config.Shuffle
	if shuffler == nil {
		shuffler = NewPassShuffler(0)
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Controller{
		backend:  backend,
		playlist: playlist.New(),
		index:    -1,
		state:    StateStopped,
		volume:   DefaultVolume,
		repeat:   RepeatOff,
		shuffler: shuffler,
		config:   config,
		eventCh:  make(chan Event, buffer),
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Run consumes backend completions and emits position ticks until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	var tick <-chan time.Time
	if c.config.TickInterval > 0 {
		ticker := time.NewTicker(c.config.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	finished := c.backend.Finished()
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-finished:
			if !ok {
				return
			}
			c.handleFinished(h)
		case <-tick:
			c.tick()
		}
	}
}

// LoadPlaylist replaces the playlist and stops playback.
// The current index becomes 0, or none when tracks is empty.
func (c *Controller) LoadPlaylist(tracks []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevState := c.state
	c.closeHandleLocked()
	c.playlist = playlist.New(tracks...)
	c.position = 0
	c.state = StateStopped
	c.shuffler.Reset()
	if c.playlist.Len() > 0 {
		c.index = 0
	} else {
		c.index = -1
	}

	zlog.Debug().Msgf("playback: playlist loaded: tracks=%d", c.playlist.Len())

	c.emitLocked(EventPlaylistChanged)
	if prevState != StateStopped {
		c.emitLocked(EventStateChanged)
	}
	c.emitLocked(EventTrackChanged)
}

// Append adds tracks to the end of the playlist, skipping paths already present.
// Returns the number of tracks added.
func (c *Controller) Append(tracks []track.Track) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := c.playlist.Add(tracks...)
	if added == 0 {
		return 0
	}
	c.shuffler.Reset()
	c.emitLocked(EventPlaylistChanged)
	if c.index < 0 {
		c.index = 0
		c.position = 0
		c.emitLocked(EventTrackChanged)
	}
	return added
}

// Remove removes the playlist entry at index.
// Removing the current track stops playback; the index then points at the
// track that took its place (or the new last track).
func (c *Controller) Remove(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playlist.Valid(index) {
		return errors.Wrapf(failure.ErrInvalidRange, "remove index %d of %d", index, c.playlist.Len())
	}

	wasCurrent := index == c.index
	c.playlist.Remove(index)
	c.shuffler.Reset()
	c.emitLocked(EventPlaylistChanged)

	switch {
	case c.playlist.Len() == 0:
		c.stopLocked()
		c.index = -1
		c.emitLocked(EventTrackChanged)
	case wasCurrent:
		c.stopLocked()
		if c.index >= c.playlist.Len() {
			c.index = c.playlist.Len() - 1
		}
		c.emitLocked(EventTrackChanged)
	case index < c.index:
		c.index--
	}
	return nil
}

// Move moves the playlist entry at from to position to, keeping the current
// track current.
func (c *Controller) Move(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playlist.Move(from, to) {
		return errors.Wrapf(failure.ErrInvalidRange, "move %d to %d of %d", from, to, c.playlist.Len())
	}

	switch {
	case from == c.index:
		c.index = to
	case from < c.index && to >= c.index:
		c.index--
	case from > c.index && to <= c.index:
		c.index++
	}
	c.shuffler.Reset()
	c.emitLocked(EventPlaylistChanged)
	return nil
}

// Play starts or resumes playback of the current track.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist.Len() == 0 {
		return failure.ErrEmptyPlaylist
	}

	switch c.state {
	case StatePlaying:
		return nil
	case StatePaused:
		if err := c.backend.Play(c.handle); err != nil {
			return failure.Mark(err, failure.ErrBackendIO, "resume track")
		}
		c.setStateLocked(StatePlaying)
		return nil
	}

	h, err := c.openLocked(c.index)
	if err != nil {
		return err
	}
	if c.position > 0 {
		if err := c.backend.Seek(h, c.position); err != nil {
			zlog.Warn().Msgf("playback: failed to restore position %v: %v", c.position, err)
			c.position = 0
		}
	}
	if err := c.backend.Play(h); err != nil {
		_ = c.backend.Stop(h)
		return failure.Mark(err, failure.ErrBackendIO, "play track")
	}

	c.handle, c.hasHandle = h, true
	c.setStateLocked(StatePlaying)
	return nil
}

// Pause pauses playback. Pausing while paused is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStopped:
		return failure.ErrNotPlaying
	case StatePaused:
		return nil
	}

	if err := c.backend.Pause(c.handle); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "pause track")
	}
	c.position = c.backend.Position(c.handle)
	c.setStateLocked(StatePaused)
	return nil
}

// Stop stops playback and rewinds. The current index is kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

// Seek moves the playback position of the current track, clamped to
// [0, duration]. A track with unknown duration is only clamped at 0.
func (c *Controller) Seek(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.playlist.Track(c.index)
	if t == nil {
		return errors.Wrap(failure.ErrInvalidRange, "seek without a loaded track")
	}

	position = clampPosition(position, t.Duration)
	if c.hasHandle {
		if err := c.backend.Seek(c.handle, position); err != nil {
			return failure.Mark(err, failure.ErrBackendIO, "seek track")
		}
	}
	c.position = position
	c.emitLocked(EventSeeked)
	return nil
}

// Next advances according to the shuffle and repeat configuration.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist.Len() == 0 {
		return failure.ErrEmptyPlaylist
	}

	target, ok := c.nextIndexLocked()
	if !ok {
		c.endOfPlaylistLocked()
		return nil
	}

	from := c.index
	var err error
	if target == c.index {
		err = c.restartLocked()
	} else {
		err = c.moveToLocked(target, c.state)
	}
	if err != nil {
		return err
	}
	c.advanceShuffleLocked(from, target)
	return nil
}

// Previous goes back according to the shuffle and repeat configuration.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playlist.Len() == 0 {
		return failure.ErrEmptyPlaylist
	}

	threshold := c.config.PreviousRestartThreshold
	if threshold > 0 && c.state.IsActive() && c.currentPositionLocked() > threshold {
		return c.restartLocked()
	}

	target, fromHistory := c.previousIndexLocked()
	var err error
	if target == c.index {
		err = c.restartLocked()
	} else {
		err = c.moveToLocked(target, c.state)
	}
	if err != nil {
		return err
	}
	if fromHistory {
		c.shuffler.Back()
	}
	return nil
}

// JumpTo makes the track at index current and plays it.
func (c *Controller) JumpTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playlist.Valid(index) {
		return errors.Wrapf(failure.ErrInvalidRange, "jump to index %d of %d", index, c.playlist.Len())
	}
	if index == c.index && c.state.IsActive() {
		if err := c.restartLocked(); err != nil {
			return err
		}
		if c.state == StatePaused {
			if err := c.backend.Play(c.handle); err != nil {
				return failure.Mark(err, failure.ErrBackendIO, "resume track")
			}
			c.setStateLocked(StatePlaying)
		}
		return nil
	}

	from := c.index
	if err := c.moveToLocked(index, StatePlaying); err != nil {
		return err
	}
	if c.shuffle {
		c.shuffler.Visit(from, index)
	}
	return nil
}

// Select makes the track at index current, keeping the playback state:
// a playing controller plays the new track, a paused one opens it paused
// and a stopped one only moves the index.
func (c *Controller) Select(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playlist.Valid(index) {
		return errors.Wrapf(failure.ErrInvalidRange, "select index %d of %d", index, c.playlist.Len())
	}
	if index == c.index {
		return nil
	}
	from := c.index
	if err := c.moveToLocked(index, c.state); err != nil {
		return err
	}
	if c.shuffle {
		c.shuffler.Visit(from, index)
	}
	return nil
}

// SetVolume clamps level to [0, 100], applies it and returns the applied level.
func (c *Controller) SetVolume(level int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	level = clampVolume(level)
	if c.hasHandle {
		if err := c.backend.SetVolume(c.handle, level); err != nil {
			return c.volume, failure.Mark(err, failure.ErrBackendIO, "set volume")
		}
	}
	if level != c.volume {
		c.volume = level
		c.emitLocked(EventVolumeChanged)
	}
	return level, nil
}

// SetShuffle enables or disables shuffle. Enabling starts a fresh pass.
// Current playback is not affected.
func (c *Controller) SetShuffle(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shuffle == enabled {
		return
	}
	c.shuffle = enabled
	c.shuffler.Reset()
	c.emitLocked(EventModeChanged)
}

// SetRepeat sets the repeat mode. Current playback is not affected.
func (c *Controller) SetRepeat(mode RepeatMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !mode.Valid() {
		return errors.Wrapf(failure.ErrInvalidRange, "repeat mode %d", int(mode))
	}
	if c.repeat == mode {
		return nil
	}
	c.repeat = mode
	c.emitLocked(EventModeChanged)
	return nil
}

// OnTrackFinished applies the end-of-track policy to the current track.
// Backend completions normally arrive through Run; this is the same path
// without the stale-handle check.
func (c *Controller) OnTrackFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finishLocked()
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.position = c.currentPositionLocked()
	return c.snapshotLocked()
}

// Tracks returns a copy of the playlist.
func (c *Controller) Tracks() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playlist.Tracks()
}

// Close stops playback and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closeHandleLocked()
	c.state = StateStopped
	c.closed = true
	close(c.eventCh)
}

func (c *Controller) handleFinished(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasHandle || c.handle != h {
		zlog.Debug().Msgf("playback: ignoring completion of stale handle %d", h)
		return
	}
	c.finishLocked()
}

func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return
	}
	c.position = c.currentPositionLocked()
	c.emitLocked(EventPositionTick)
}

// finishLocked applies repeat/shuffle policy after the current track ended.
// Must be called with lock held.
func (c *Controller) finishLocked() {
	if c.state != StatePlaying {
		return
	}

	if t := c.playlist.Track(c.index); t != nil {
		zlog.Debug().Msgf("playback: track finished: index=%d path=%s", c.index, t.Path)
	}
	c.emitLocked(EventTrackFinished)

	if c.repeat == RepeatOne {
		if err := c.playIndexLocked(c.index); err != nil {
			c.failLocked(c.index, err)
			c.stopLocked()
		}
		return
	}

	for attempt := 0; attempt < c.playlist.Len(); attempt++ {
		from := c.index
		target, ok := c.nextIndexLocked()
		if !ok {
			c.endOfPlaylistLocked()
			return
		}
		err := c.playIndexLocked(target)
		// A track skipped as unplayable still counts as visited in the pass.
		c.advanceShuffleLocked(from, target)
		if err == nil {
			return
		}
		c.failLocked(target, err)
		// Continue from the failed track so the next attempt moves past it.
		c.index = target
	}

	zlog.Warn().Msg("playback: no playable track left, stopping")
	c.stopLocked()
}

// playIndexLocked replaces the current handle with a fresh one for index and plays it.
// Must be called with lock held.
func (c *Controller) playIndexLocked(index int) error {
	h, err := c.openLocked(index)
	if err != nil {
		return err
	}
	if err := c.backend.Play(h); err != nil {
		_ = c.backend.Stop(h)
		return failure.Mark(err, failure.ErrBackendIO, "play track")
	}

	changed := index != c.index
	c.closeHandleLocked()
	c.handle, c.hasHandle = h, true
	c.index = index
	c.position = 0
	c.setStateLocked(StatePlaying)
	if changed {
		c.emitLocked(EventTrackChanged)
	} else {
		c.emitLocked(EventSeeked)
	}
	return nil
}

// moveToLocked makes target current and puts it in the wanted state.
// The previous handle is only released once the new track opened, so a
// failure leaves the controller where it was.
// Must be called with lock held.
func (c *Controller) moveToLocked(target int, want State) error {
	if want == StateStopped {
		c.closeHandleLocked()
		c.index = target
		c.position = 0
		c.emitLocked(EventTrackChanged)
		return nil
	}

	h, err := c.openLocked(target)
	if err != nil {
		return err
	}
	if want == StatePlaying {
		if err := c.backend.Play(h); err != nil {
			_ = c.backend.Stop(h)
			return failure.Mark(err, failure.ErrBackendIO, "play track")
		}
	}

	c.closeHandleLocked()
	c.handle, c.hasHandle = h, true
	c.index = target
	c.position = 0
	c.setStateLocked(want)
	c.emitLocked(EventTrackChanged)
	return nil
}

// restartLocked rewinds the current track.
// Must be called with lock held.
func (c *Controller) restartLocked() error {
	if c.hasHandle {
		if err := c.backend.Seek(c.handle, 0); err != nil {
			return failure.Mark(err, failure.ErrBackendIO, "restart track")
		}
	}
	c.position = 0
	c.emitLocked(EventSeeked)
	return nil
}

// openLocked opens the track at index on the backend and applies the volume.
// Must be called with lock held.
func (c *Controller) openLocked(index int) (Handle, error) {
	t := c.playlist.Track(index)
	if t == nil {
		return 0, errors.Wrapf(failure.ErrInvalidRange, "open index %d of %d", index, c.playlist.Len())
	}

	h, err := c.backend.Open(t.Path)
	if err != nil {
		if !errors.Is(err, failure.ErrUnsupportedFormat) && !errors.Is(err, failure.ErrBackendIO) {
			err = failure.Mark(err, failure.ErrBackendIO, "open track")
		}
		return 0, errors.Wrapf(err, "open %s", t.Path)
	}
	if err := c.backend.SetVolume(h, c.volume); err != nil {
		zlog.Warn().Msgf("playback: failed to apply volume to %s: %v", t.Path, err)
	}
	return h, nil
}

// nextIndexLocked returns the index Next should move to, or false at the
// end of the playlist with repeat off.
// Must be called with lock held.
func (c *Controller) nextIndexLocked() (int, bool) {
	n := c.playlist.Len()
	switch {
	case c.repeat == RepeatOne:
		return c.index, true
	case c.shuffle:
		return c.shuffler.Next(c.index, n), true
	case c.index+1 < n:
		return c.index + 1, true
	case c.repeat == RepeatAll:
		return 0, true
	default:
		return c.index, false
	}
}

// advanceShuffleLocked records a completed Next move in the shuffle pass.
// Must be called with lock held.
func (c *Controller) advanceShuffleLocked(from, target int) {
	if c.shuffle && c.repeat != RepeatOne {
		c.shuffler.Advance(from, target, c.playlist.Len())
	}
}

// previousIndexLocked returns the index Previous should move to and whether
// it came from the shuffle history.
// Must be called with lock held.
func (c *Controller) previousIndexLocked() (int, bool) {
	switch {
	case c.repeat == RepeatOne:
		return c.index, false
	case c.shuffle:
		if prev, ok := c.shuffler.Previous(); ok && c.playlist.Valid(prev) {
			return prev, true
		}
		return c.index, false
	case c.index > 0:
		return c.index - 1, false
	case c.repeat == RepeatAll:
		return c.playlist.Len() - 1, false
	default:
		return c.index, false
	}
}

// endOfPlaylistLocked stops on the last track.
// Must be called with lock held.
func (c *Controller) endOfPlaylistLocked() {
	zlog.Debug().Msg("playback: end of playlist reached")
	c.stopLocked()
	c.emitLocked(EventPlaylistEnded)
}

// stopLocked releases the handle and rewinds.
// Must be called with lock held.
func (c *Controller) stopLocked() {
	c.closeHandleLocked()
	c.position = 0
	c.setStateLocked(StateStopped)
}

func (c *Controller) closeHandleLocked() {
	if !c.hasHandle {
		return
	}
	if err := c.backend.Stop(c.handle); err != nil {
		zlog.Warn().Msgf("playback: failed to stop handle %d: %v", c.handle, err)
	}
	c.handle, c.hasHandle = 0, false
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emitLocked(EventStateChanged)
}

func (c *Controller) failLocked(index int, err error) {
	zlog.Warn().Msgf("playback: skipping unplayable track: index=%d error=%v", index, err)
	c.sendEventLocked(Event{
		Type:   EventTrackFailed,
		Status: c.snapshotLocked(),
		Index:  index,
		Err:    err,
	})
}

func (c *Controller) currentPositionLocked() time.Duration {
	if c.state == StatePlaying && c.hasHandle {
		return c.backend.Position(c.handle)
	}
	return c.position
}

func (c *Controller) snapshotLocked() Status {
	s := Status{
		State:         c.state,
		Index:         c.index,
		Position:      c.position,
		Volume:        c.volume,
		Shuffle:       c.shuffle,
		Repeat:        c.repeat,
		PlaylistLen:   c.playlist.Len(),
		TotalDuration: c.playlist.TotalDuration(),
	}
	if t := c.playlist.Track(c.index); t != nil {
		copied := *t
		s.Track = &copied
		s.Duration = t.Duration
	}
	return s
}

func (c *Controller) emitLocked(t EventType) {
	c.sendEventLocked(Event{
		Type:   t,
		Status: c.snapshotLocked(),
		Index:  c.index,
	})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		zlog.Debug().Msgf("playback: event channel full, dropping %s", e.Type)
	}
}

func clampVolume(level int) int {
	return max(0, min(MaxVolume, level))
}

func clampPosition(position, duration time.Duration) time.Duration {
	if position < 0 {
		return 0
	}
	if duration > 0 && position > duration {
		return duration
	}
	return position
}
