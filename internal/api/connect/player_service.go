package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/app/session"
	"github.com/osa030/groovebox/internal/domain/track"
)

// Cover response headers.
const (
	CoverMIMEHeader   = "Groovebox-Cover-Mime"
	CoverSourceHeader = "Groovebox-Cover-Source"
)

// TypeSnapshot is the type of the first message of a subscription.
const TypeSnapshot = "snapshot"

type (
	statusResponse = connect.Response[structpb.Struct]
	listResponse   = connect.Response[structpb.ListValue]
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{
		session: session,
	}
}

// NewHandler returns the path prefix and handler serving every procedure of svc.
func NewHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	unary(mux, PlayProcedure, svc.Play, opts)
	unary(mux, PauseProcedure, svc.Pause, opts)
	unary(mux, StopProcedure, svc.Stop, opts)
	unary(mux, NextProcedure, svc.Next, opts)
	unary(mux, PreviousProcedure, svc.Previous, opts)
	unary(mux, SeekProcedure, svc.Seek, opts)
	unary(mux, SetVolumeProcedure, svc.SetVolume, opts)
	unary(mux, SetShuffleProcedure, svc.SetShuffle, opts)
	unary(mux, SetRepeatProcedure, svc.SetRepeat, opts)
	unary(mux, JumpToProcedure, svc.JumpTo, opts)
	unary(mux, LoadProcedure, svc.Load, opts)
	unary(mux, RemoveProcedure, svc.Remove, opts)
	unary(mux, MoveProcedure, svc.Move, opts)
	unary(mux, SearchProcedure, svc.Search, opts)
	unary(mux, SearchLibraryProcedure, svc.SearchLibrary, opts)
	unary(mux, ListTracksProcedure, svc.ListTracks, opts)
	unary(mux, GetStatusProcedure, svc.GetStatus, opts)
	unary(mux, GetCoverProcedure, svc.GetCover, opts)
	unary(mux, SavePlaylistProcedure, svc.SavePlaylist, opts)
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + ServiceName + "/", mux
}

func unary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// Play starts or resumes playback.
func (s *PlayerService) Play(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	return s.statusAfter(s.session.Play())
}

// Pause pauses playback.
func (s *PlayerService) Pause(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	return s.statusAfter(s.session.Pause())
}

// Stop stops playback.
func (s *PlayerService) Stop(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	s.session.Stop()
	return s.status()
}

// Next skips to the next track.
func (s *PlayerService) Next(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	return s.statusAfter(s.session.Next())
}

// Previous goes back to the previous track.
func (s *PlayerService) Previous(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	return s.statusAfter(s.session.Previous())
}

// Seek moves the playback position.
func (s *PlayerService) Seek(ctx context.Context, req *connect.Request[durationpb.Duration]) (*statusResponse, error) {
	if err := req.Msg.CheckValid(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.statusAfter(s.session.Seek(req.Msg.AsDuration()))
}

// SetVolume sets the volume (clamped to 0-100).
func (s *PlayerService) SetVolume(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*statusResponse, error) {
	_, err := s.session.SetVolume(int(req.Msg.GetValue()))
	return s.statusAfter(err)
}

// SetShuffle enables or disables shuffle.
func (s *PlayerService) SetShuffle(ctx context.Context, req *connect.Request[wrapperspb.BoolValue]) (*statusResponse, error) {
	s.session.SetShuffle(req.Msg.GetValue())
	return s.status()
}

// SetRepeat sets the repeat mode ("off", "one" or "all").
func (s *PlayerService) SetRepeat(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*statusResponse, error) {
	return s.statusAfter(s.session.SetRepeat(req.Msg.GetValue()))
}

// JumpTo plays the playlist entry at the given index.
func (s *PlayerService) JumpTo(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*statusResponse, error) {
	return s.statusAfter(s.session.JumpTo(int(req.Msg.GetValue())))
}

// Remove removes the playlist entry at the given index.
func (s *PlayerService) Remove(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*statusResponse, error) {
	return s.statusAfter(s.session.Remove(int(req.Msg.GetValue())))
}

// Move reorders the playlist. The request carries "from" and "to" indices.
func (s *PlayerService) Move(ctx context.Context, req *connect.Request[structpb.Struct]) (*statusResponse, error) {
	var args struct {
		From *int `mapstructure:"from"`
		To   *int `mapstructure:"to"`
	}
	if err := decodeStruct(req.Msg, &args); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if args.From == nil || args.To == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("from and to are required"))
	}
	return s.statusAfter(s.session.Move(*args.From, *args.To))
}

// Load loads paths into the playlist. The request carries "paths" and an
// optional "replace" flag; the response summarizes what was loaded.
func (s *PlayerService) Load(ctx context.Context, req *connect.Request[structpb.Struct]) (*statusResponse, error) {
	var args struct {
		Paths   []string `mapstructure:"paths"`
		Replace bool     `mapstructure:"replace"`
	}
	if err := decodeStruct(req.Msg, &args); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	paths := lo.Filter(args.Paths, func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	if len(paths) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("paths are required"))
	}

	result, err := s.session.LoadPaths(ctx, paths, args.Replace)
	msg, encErr := loadResultStruct(result)
	if encErr != nil {
		return nil, connect.NewError(connect.CodeInternal, encErr)
	}
	if err != nil {
		cerr := toConnectError(err).(*connect.Error)
		if detail, detailErr := connect.NewErrorDetail(msg); detailErr == nil {
			cerr.AddDetail(detail)
		}
		return nil, cerr
	}
	return connect.NewResponse(msg), nil
}

// Search returns the playlist entries matching the query.
func (s *PlayerService) Search(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*listResponse, error) {
	hits := s.session.Search(ctx, req.Msg.GetValue())
	indices := lo.Map(hits, func(h session.Hit, _ int) int { return h.Index })
	tracks := lo.Map(hits, func(h session.Hit, _ int) track.Track { return h.Track })
	return listOf(indices, tracks)
}

// SearchLibrary returns the library tracks matching the query.
// Library tracks carry index -1.
func (s *PlayerService) SearchLibrary(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*listResponse, error) {
	tracks := s.session.SearchLibrary(ctx, req.Msg.GetValue())
	indices := lo.Map(tracks, func(track.Track, int) int { return -1 })
	return listOf(indices, tracks)
}

// ListTracks returns the playlist.
func (s *PlayerService) ListTracks(ctx context.Context, req *connect.Request[emptypb.Empty]) (*listResponse, error) {
	tracks := s.session.Tracks()
	return listOf(lo.Range(len(tracks)), tracks)
}

// GetStatus returns the playback snapshot.
func (s *PlayerService) GetStatus(ctx context.Context, req *connect.Request[emptypb.Empty]) (*statusResponse, error) {
	return s.status()
}

// GetCover returns the cover art of the playlist entry at the given index,
// or of the current track for -1.
func (s *PlayerService) GetCover(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[wrapperspb.BytesValue], error) {
	img, err := s.session.Cover(ctx, int(req.Msg.GetValue()))
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := connect.NewResponse(wrapperspb.Bytes(img.Data))
	resp.Header().Set(CoverMIMEHeader, img.MIMEType)
	resp.Header().Set(CoverSourceHeader, string(img.Source))
	return resp, nil
}

// SavePlaylist writes the playlist as an M3U file on the server.
func (s *PlayerService) SavePlaylist(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	path := strings.TrimSpace(req.Msg.GetValue())
	if path == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("path is required"))
	}
	if err := s.session.SavePlaylist(path); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Subscribe streams notifications, starting with a snapshot of the current
// status, until the client disconnects or the session closes.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sub := &subscriber{stream: stream}

	// Broadcasts wait on sub.mu, so the snapshot always goes out first.
	sub.mu.Lock()
	id := s.session.Subscribe(sub)
	defer s.session.Unsubscribe(id)
	err := sub.sendLocked(&notification.Notification{
		Type:   TypeSnapshot,
		Status: s.session.Status(),
	})
	sub.mu.Unlock()
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("api: subscriber connected: id=%s", id)

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}
	zlog.Debug().Msgf("api: subscriber disconnected: id=%s", id)
	return nil
}

func (s *PlayerService) status() (*statusResponse, error) {
	msg, err := statusStruct(s.session.Status())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *PlayerService) statusAfter(err error) (*statusResponse, error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.status()
}

func listOf(indices []int, tracks []track.Track) (*listResponse, error) {
	list, err := tracksList(indices, tracks)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(list), nil
}

// subscriber adapts a server stream to notification.Stream.
// Sends are serialized; the notification manager may overlap them.
type subscriber struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (s *subscriber) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(n)
}

func (s *subscriber) sendLocked(n *notification.Notification) error {
	msg, err := notificationStruct(n)
	if err != nil {
		return err
	}
	return s.stream.Send(msg)
}
