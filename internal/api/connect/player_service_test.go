package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/app/library"
	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/app/session"
	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/artwork"
	"github.com/osa030/groovebox/internal/infra/config"
)

type fakeBackend struct {
	mu       sync.Mutex
	nextID   playback.Handle
	finished chan playback.Handle
}

func (b *fakeBackend) Open(string) (playback.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBackend) Play(playback.Handle) error                { return nil }
func (b *fakeBackend) Pause(playback.Handle) error               { return nil }
func (b *fakeBackend) Stop(playback.Handle) error                { return nil }
func (b *fakeBackend) Seek(playback.Handle, time.Duration) error { return nil }
func (b *fakeBackend) SetVolume(playback.Handle, int) error      { return nil }
func (b *fakeBackend) Position(playback.Handle) time.Duration    { return 0 }
func (b *fakeBackend) Finished() <-chan playback.Handle          { return b.finished }

type pathCovers struct{}

func (pathCovers) Cover(_ context.Context, t track.Track) (*artwork.Image, error) {
	return &artwork.Image{Data: []byte(t.Path), MIMEType: "image/png", Source: artwork.SourcePlaceholder}, nil
}

type testServer struct {
	dir     string
	session *session.Manager
	server  *httptest.Server
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Player.TickIntervalMs = 0

	m, err := session.NewManager(cfg, session.Components{
		Backend: &fakeBackend{finished: make(chan playback.Handle)},
		Covers:  pathCovers{},
		Shuffle: playback.NewPassShuffler(1),
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	var opts []connect.HandlerOption
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewAuthInterceptor(token)))
	}
	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewPlayerService(m), opts...))
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		m.Close()
		server.Close()
	})
	return &testServer{dir: t.TempDir(), session: m, server: server}
}

func (s *testServer) client(token string) *Client {
	return NewClient(s.server.Client(), s.server.URL, token)
}

func (s *testServer) writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("audio"), 0o644))
	}
	return paths
}

func TestPlayerService_Auth(t *testing.T) {
	ts := newTestServer(t, "secret")
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		code  connect.Code
	}{
		{name: "missing token", token: "", code: connect.CodeUnauthenticated},
		{name: "wrong token", token: "guess", code: connect.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.client(tt.token).Status(ctx)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}

	status, err := ts.client("secret").Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", status.State)
}

func TestPlayerService_Playback(t *testing.T) {
	ts := newTestServer(t, "")
	paths := ts.writeFiles(t, "abba - waterloo.mp3", "queen - bohemian rhapsody.mp3", "queen - radio ga ga.mp3")
	client := ts.client("")
	ctx := context.Background()

	result, err := client.Load(ctx, []string{ts.dir}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)

	tracks, err := client.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, paths[0], tracks[0].Path)
	assert.Equal(t, 2, tracks[2].Index)

	status, err := client.Play(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", status.State)
	require.NotNil(t, status.Track)
	assert.Equal(t, paths[0], status.Track.Path)

	status, err = client.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Index)

	status, err = client.SetVolume(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, status.Volume)

	status, err = client.SetRepeat(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, "all", status.Repeat)

	status, err = client.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", status.State)

	hits, err := client.Search(ctx, "queen")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Index)
	assert.Equal(t, 2, hits[1].Index)

	_, err = client.Move(ctx, 2, 0)
	require.NoError(t, err)
	tracks, err = client.ListTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, paths[2], tracks[0].Path)

	cover, err := client.Cover(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte(paths[2]), cover.Data)
	assert.Equal(t, "image/png", cover.MIMEType)
	assert.Equal(t, string(artwork.SourcePlaceholder), cover.Source)

	out := filepath.Join(ts.dir, "saved.m3u")
	require.NoError(t, client.SavePlaylist(ctx, out))
	saved, err := library.ReadM3U(out)
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	status, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", status.State)
}

func TestPlayerService_Errors(t *testing.T) {
	ts := newTestServer(t, "")
	client := ts.client("")
	ctx := context.Background()

	_, err := client.Play(ctx)
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	assert.True(t, errors.Is(err, failure.ErrEmptyPlaylist))

	paths := ts.writeFiles(t, "notes.txt")
	result, err := client.Load(ctx, paths, true)
	assert.True(t, errors.Is(err, failure.ErrEmptyPlaylist))
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Added)
	assert.Len(t, result.Skipped, 1)

	ts.writeFiles(t, "a.mp3")
	_, err = client.Load(ctx, []string{ts.dir}, true)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		code connect.Code
		kind error
	}{
		{
			name: "jump out of range",
			call: func() error { _, err := client.JumpTo(ctx, 5); return err },
			code: connect.CodeOutOfRange,
			kind: failure.ErrInvalidRange,
		},
		{
			name: "unknown repeat mode",
			call: func() error { _, err := client.SetRepeat(ctx, "twice"); return err },
			code: connect.CodeOutOfRange,
			kind: failure.ErrInvalidRange,
		},
		{
			name: "remove out of range",
			call: func() error { _, err := client.Remove(ctx, 9); return err },
			code: connect.CodeOutOfRange,
			kind: failure.ErrInvalidRange,
		},
		{
			name: "empty playlist path",
			call: func() error { return client.SavePlaylist(ctx, " ") },
			code: connect.CodeInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
			if tt.kind != nil {
				assert.True(t, errors.Is(err, tt.kind))
			}
		})
	}
}

func TestPlayerService_Subscribe(t *testing.T) {
	ts := newTestServer(t, "")
	ts.writeFiles(t, "a.mp3")
	client := ts.client("")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan NotificationView, 16)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, func(n NotificationView) error {
			received <- n
			return nil
		})
	}()

	select {
	case n := <-received:
		assert.Equal(t, TypeSnapshot, n.Type)
		assert.Equal(t, "stopped", n.Status.State)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
	}

	_, err := client.Load(context.Background(), []string{ts.dir}, true)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		select {
		case n := <-received:
			return n.Status.PlaylistLen == 1
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not return")
	}
}

func TestConnectCode(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{err: failure.ErrEmptyPlaylist, want: connect.CodeFailedPrecondition},
		{err: errors.Wrap(failure.ErrNotPlaying, "seek"), want: connect.CodeFailedPrecondition},
		{err: failure.ErrInvalidRange, want: connect.CodeOutOfRange},
		{err: failure.ErrUnsupportedFormat, want: connect.CodeInvalidArgument},
		{err: failure.ErrMetadataRead, want: connect.CodeInvalidArgument},
		{err: failure.ErrBackendIO, want: connect.CodeUnavailable},
		{err: errors.New("boom"), want: connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, connectCode(tt.err))

			cerr := toConnectError(tt.err)
			assert.Equal(t, tt.want, connect.CodeOf(cerr))
			back := fromConnectError(cerr)
			if tt.want != connect.CodeInternal {
				assert.True(t, errors.Is(back, errors.Cause(tt.err)))
			}
		})
	}
}
