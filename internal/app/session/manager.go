// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/app/library"
	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/artwork"
	"github.com/osa030/groovebox/internal/infra/config"
	"github.com/osa030/groovebox/internal/infra/store"
)

// CurrentIndex addresses the current track in Cover.
const CurrentIndex = -1

// CoverResolver finds cover art for a track.
type CoverResolver interface {
	Cover(ctx context.Context, t track.Track) (*artwork.Image, error)
}

// StateStore persists player state.
type StateStore interface {
	Load() (store.State, bool, error)
	Save(state store.State) error
}

// Components are the collaborators a Manager drives.
type Components struct {
	Backend playback.Backend       // Required
	Scanner *library.Scanner       // nil uses a scanner without tag or duration support
	Covers  CoverResolver          // nil disables cover art
	Store   StateStore             // nil disables persistence
	Shuffle playback.ShufflePolicy // nil uses the controller default
}

// Rejection is a track the import filters refused.
type Rejection struct {
	Path string
	Code string
}

// LoadResult summarizes a LoadPaths call.
type LoadResult struct {
	Added    int
	Skipped  []library.Skipped
	Rejected []Rejection
}

// Hit is a playlist entry matching a search.
type Hit struct {
	Index int
	Track track.Track
}

// Manager owns the playback controller and wires the library, filters,
// artwork, persistence and notifications around it.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	playback     *playback.Controller
	scanner      *library.Scanner
	searchChain  *filter.Chain
	importChain  *filter.Chain
	covers       CoverResolver
	store        StateStore
	notification *notification.Manager
	watcher      *library.Watcher

	// Library index, guarded by mu
	library []track.Track

	saveMu    sync.Mutex
	persistCh chan struct{}

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, comps Components) (*Manager, error) {
	if comps.Backend == nil {
		return nil, errors.New("playback backend is required")
	}
	scanner := comps.Scanner
	if scanner == nil {
		scanner = library.NewScanner(nil, nil)
	}

	importChain, err := buildImportChain(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config: cfg,
		playback: playback.NewController(comps.Backend, playback.Config{
			TickInterval:             cfg.Player.TickInterval(),
			PreviousRestartThreshold: cfg.Player.PreviousRestartThreshold(),
			Shuffle:                  comps.Shuffle,
		}),
		scanner:      scanner,
		searchChain:  filter.NewChain(filter.NewQueryFilter()),
		importChain:  importChain,
		covers:       comps.Covers,
		store:        comps.Store,
		notification: notification.NewManager(),
		persistCh:    make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	return m, nil
}

// buildImportChain creates the chain applied to tracks entering the playlist
// from the enabled filters, in name order.
func buildImportChain(cfg *config.Config) (*filter.Chain, error) {
	chain := filter.NewChain()
	for _, name := range filter.Names() {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f, err := filter.New(name, cfg.FilterSettings(name))
		if err != nil {
			return nil, errors.Wrap(err, "failed to set up import filters")
		}
		chain.Add(f)
	}

	for name, fc := range cfg.Filters {
		if fc.Enabled && !lo.Contains(filter.Names(), name) {
			return nil, errors.Newf("unknown filter: %s", name)
		}
	}
	return chain, nil
}

// Start applies the configured modes, restores the saved state, indexes the
// library and starts the background loops. It does not block.
func (m *Manager) Start(ctx context.Context) error {
	m.applyConfig()
	m.restore(ctx)

	if len(m.config.Library.Dirs) > 0 {
		if err := m.RescanLibrary(ctx); err != nil {
			zlog.Warn().Msgf("session: library scan failed: %v", err)
		}
		if m.config.Library.Watch {
			w, err := library.NewWatcher(m.config.Library.Dirs, m.config.Library.Debounce(), func() {
				if err := m.RescanLibrary(m.ctx); err != nil {
					zlog.Warn().Msgf("session: library rescan failed: %v", err)
				}
			})
			if err != nil {
				return errors.Wrap(err, "failed to watch library")
			}
			m.watcher = w
			m.goLoop(func() { w.Run(m.ctx) })
		}
	}

	m.goLoop(func() { m.playback.Run(m.ctx) })
	m.goLoop(m.eventLoop)
	m.goLoop(m.persistLoop)

	if m.config.Player.AutoPlay && m.playback.Status().PlaylistLen > 0 {
		if err := m.playback.Play(); err != nil {
			zlog.Warn().Msgf("session: auto play failed: %v", err)
		}
	}

	status := m.playback.Status()
	zlog.Info().Msgf("session started: tracks=%d index=%d volume=%d shuffle=%v repeat=%s filters=%v",
		status.PlaylistLen, status.Index, status.Volume, status.Shuffle, status.Repeat, m.importChain.Names())
	return nil
}

func (m *Manager) applyConfig() {
	player := m.config.Player
	if _, err := m.playback.SetVolume(player.InitialVolume); err != nil {
		zlog.Warn().Msgf("session: failed to set volume: %v", err)
	}
	if mode, err := playback.ParseRepeatMode(player.Repeat); err == nil {
		_ = m.playback.SetRepeat(mode)
	}
	m.playback.SetShuffle(player.Shuffle)
}

// restore reloads the saved playlist and modes. Tracks that disappeared
// since the last run are dropped.
func (m *Manager) restore(ctx context.Context) {
	if m.store == nil {
		return
	}
	st, ok, err := m.store.Load()
	if err != nil {
		zlog.Warn().Msgf("session: failed to load saved state: %v", err)
		return
	}
	if !ok {
		return
	}

	if _, err := m.playback.SetVolume(st.Volume); err != nil {
		zlog.Warn().Msgf("session: failed to restore volume: %v", err)
	}
	m.playback.SetShuffle(st.Shuffle)
	if mode, err := playback.ParseRepeatMode(st.Repeat); err == nil {
		_ = m.playback.SetRepeat(mode)
	}

	tracks, skipped, err := m.scanner.LoadPaths(ctx, st.Paths)
	if err != nil {
		zlog.Warn().Msgf("session: failed to restore playlist: %v", err)
		return
	}
	for _, s := range skipped {
		zlog.Warn().Msgf("session: dropping saved track %s: %v", s.Path, s.Err)
	}
	m.playback.LoadPlaylist(tracks)

	if st.Index >= 0 && st.Index < len(st.Paths) {
		current := st.Paths[st.Index]
		idx := lo.IndexOf(lo.Map(tracks, func(t track.Track, _ int) string { return t.Path }), current)
		if idx > 0 {
			if err := m.playback.Select(idx); err != nil {
				zlog.Warn().Msgf("session: failed to restore index: %v", err)
			}
		}
	}
	zlog.Info().Msgf("session: restored %d of %d saved tracks", len(tracks), len(st.Paths))
}

// Done returns a channel closed once the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops the loops, saves the state and stops playback.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		if m.watcher != nil {
			if err := m.watcher.Close(); err != nil {
				zlog.Warn().Msgf("session: failed to close watcher: %v", err)
			}
		}
		m.saveState()
		m.playback.Close()
		m.wg.Wait()
		m.notification.Close()
		close(m.done)
		zlog.Info().Msg("session closed")
	})
}

// Play starts or resumes playback.
func (m *Manager) Play() error {
	return m.playback.Play()
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.playback.Pause()
}

// Stop stops playback.
func (m *Manager) Stop() {
	m.playback.Stop()
}

// Next skips to the next track.
func (m *Manager) Next() error {
	return m.playback.Next()
}

// Previous goes back to the previous track.
func (m *Manager) Previous() error {
	return m.playback.Previous()
}

// JumpTo plays the playlist entry at index.
func (m *Manager) JumpTo(index int) error {
	return m.playback.JumpTo(index)
}

// Remove removes the playlist entry at index.
func (m *Manager) Remove(index int) error {
	return m.playback.Remove(index)
}

// Move reorders the playlist.
func (m *Manager) Move(from, to int) error {
	return m.playback.Move(from, to)
}

// SetVolume sets the volume and returns the applied level.
func (m *Manager) SetVolume(level int) (int, error) {
	return m.playback.SetVolume(level)
}

// SetShuffle enables or disables shuffle.
func (m *Manager) SetShuffle(enabled bool) {
	m.playback.SetShuffle(enabled)
}

// Status returns a snapshot of the playback state.
func (m *Manager) Status() playback.Status {
	return m.playback.Status()
}

// Tracks returns a copy of the playlist.
func (m *Manager) Tracks() []track.Track {
	return m.playback.Tracks()
}

// Seek moves the playback position of the current track.
func (m *Manager) Seek(position time.Duration) error {
	return m.playback.Seek(position)
}

// SetRepeat parses and applies a repeat mode.
func (m *Manager) SetRepeat(mode string) error {
	parsed, err := playback.ParseRepeatMode(mode)
	if err != nil {
		return err
	}
	return m.playback.SetRepeat(parsed)
}

// LoadPaths loads files, directories and playlists through the import
// filters. With replace the playlist is replaced, otherwise tracks are
// appended. When nothing is accepted the playlist is left untouched.
func (m *Manager) LoadPaths(ctx context.Context, paths []string, replace bool) (LoadResult, error) {
	tracks, skipped, err := m.scanner.LoadPaths(ctx, paths)
	if err != nil {
		return LoadResult{}, err
	}
	result := LoadResult{Skipped: skipped}

	var base []track.Track
	if !replace {
		base = m.playback.Tracks()
	}
	accepted := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		res := m.importChain.Execute(ctx, filter.Query{Playlist: base}, t)
		if !res.Accepted {
			zlog.Debug().Msgf("session: rejected %s: %s", t.Path, res.Code)
			result.Rejected = append(result.Rejected, Rejection{Path: t.Path, Code: res.Code})
			continue
		}
		accepted = append(accepted, t)
		base = append(base, t)
	}

	if len(accepted) == 0 {
		return result, errors.Wrap(failure.ErrEmptyPlaylist, "no playable tracks found")
	}
	if replace {
		m.playback.LoadPlaylist(accepted)
		result.Added = len(accepted)
	} else {
		result.Added = m.playback.Append(accepted)
	}

	zlog.Info().Msgf("session: loaded paths: added=%d skipped=%d rejected=%d replace=%v",
		result.Added, len(result.Skipped), len(result.Rejected), replace)
	return result, nil
}

// Search returns the playlist entries matching text.
func (m *Manager) Search(ctx context.Context, text string) []Hit {
	tracks := m.playback.Tracks()
	indices := m.searchChain.Select(ctx, filter.Query{Text: text}, tracks)
	return lo.Map(indices, func(i int, _ int) Hit {
		return Hit{Index: i, Track: tracks[i]}
	})
}

// SearchLibrary returns the library tracks matching text.
func (m *Manager) SearchLibrary(ctx context.Context, text string) []track.Track {
	lib := m.Library()
	indices := m.searchChain.Select(ctx, filter.Query{Text: text}, lib)
	return lo.Map(indices, func(i int, _ int) track.Track {
		return lib[i]
	})
}

// Library returns the indexed library tracks.
func (m *Manager) Library() []track.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]track.Track, len(m.library))
	copy(result, m.library)
	return result
}

// RescanLibrary re-indexes the configured library directories.
func (m *Manager) RescanLibrary(ctx context.Context) error {
	var all []track.Track
	for _, dir := range m.config.Library.Dirs {
		tracks, _, err := m.scanner.Scan(ctx, dir)
		if err != nil {
			return errors.Wrapf(err, "scan %s", dir)
		}
		all = append(all, tracks...)
	}
	all = lo.UniqBy(all, func(t track.Track) string { return t.Path })

	m.mu.Lock()
	m.library = all
	m.mu.Unlock()

	zlog.Info().Msgf("session: library indexed: tracks=%d", len(all))
	return nil
}

// Cover returns the cover art of the playlist entry at index, or of the
// current track for CurrentIndex.
func (m *Manager) Cover(ctx context.Context, index int) (*artwork.Image, error) {
	if m.covers == nil {
		return nil, errors.Wrap(failure.ErrBackendIO, "cover art is disabled")
	}

	var t *track.Track
	if index == CurrentIndex {
		t = m.playback.Status().Track
	} else if tracks := m.playback.Tracks(); index >= 0 && index < len(tracks) {
		t = &tracks[index]
	}
	if t == nil {
		return nil, errors.Wrapf(failure.ErrInvalidRange, "no track at index %d", index)
	}
	return m.covers.Cover(ctx, *t)
}

// SavePlaylist writes the playlist as an extended M3U file.
func (m *Manager) SavePlaylist(path string) error {
	tracks := m.playback.Tracks()
	if len(tracks) == 0 {
		return failure.ErrEmptyPlaylist
	}
	return library.SaveM3U(path, tracks)
}

// Subscribe registers a notification stream and returns its id.
func (m *Manager) Subscribe(stream notification.Stream) string {
	return m.notification.Subscribe(stream)
}

// Unsubscribe removes a notification stream.
func (m *Manager) Unsubscribe(id string) {
	m.notification.Unsubscribe(id)
}

// ImportFilters returns the names of the enabled import filters.
func (m *Manager) ImportFilters() []string {
	return m.importChain.Names()
}

func (m *Manager) goLoop(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// eventLoop forwards controller events to subscribers and schedules saves.
// It ends when the controller closes its event channel.
func (m *Manager) eventLoop() {
	for event := range m.playback.Events() {
		zlog.Debug().Msgf("session: playback event: type=%s index=%d", event.Type, event.Index)

		switch event.Type {
		case playback.EventPlaylistChanged, playback.EventTrackChanged,
			playback.EventVolumeChanged, playback.EventModeChanged:
			m.schedulePersist()
		}

		if n, ok := notification.FromEvent(event); ok {
			m.notification.Broadcast(n)
		}
	}
}

func (m *Manager) schedulePersist() {
	select {
	case m.persistCh <- struct{}{}:
	default:
	}
}

func (m *Manager) persistLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.persistCh:
			m.saveState()
		}
	}
}

func (m *Manager) saveState() {
	if m.store == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	status := m.playback.Status()
	paths := lo.Map(m.playback.Tracks(), func(t track.Track, _ int) string {
		return t.Path
	})
	err := m.store.Save(store.State{
		Paths:   paths,
		Index:   status.Index,
		Volume:  status.Volume,
		Shuffle: status.Shuffle,
		Repeat:  status.Repeat.String(),
	})
	if err != nil {
		zlog.Error().Msgf("session: failed to save state: %v", err)
	}
}
