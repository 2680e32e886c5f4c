package connect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a PlayerService client.
type Client struct {
	play          *connect.Client[emptypb.Empty, structpb.Struct]
	pause         *connect.Client[emptypb.Empty, structpb.Struct]
	stop          *connect.Client[emptypb.Empty, structpb.Struct]
	next          *connect.Client[emptypb.Empty, structpb.Struct]
	previous      *connect.Client[emptypb.Empty, structpb.Struct]
	seek          *connect.Client[durationpb.Duration, structpb.Struct]
	setVolume     *connect.Client[wrapperspb.Int32Value, structpb.Struct]
	setShuffle    *connect.Client[wrapperspb.BoolValue, structpb.Struct]
	setRepeat     *connect.Client[wrapperspb.StringValue, structpb.Struct]
	jumpTo        *connect.Client[wrapperspb.Int32Value, structpb.Struct]
	load          *connect.Client[structpb.Struct, structpb.Struct]
	remove        *connect.Client[wrapperspb.Int32Value, structpb.Struct]
	move          *connect.Client[structpb.Struct, structpb.Struct]
	search        *connect.Client[wrapperspb.StringValue, structpb.ListValue]
	searchLibrary *connect.Client[wrapperspb.StringValue, structpb.ListValue]
	listTracks    *connect.Client[emptypb.Empty, structpb.ListValue]
	getStatus     *connect.Client[emptypb.Empty, structpb.Struct]
	getCover      *connect.Client[wrapperspb.Int32Value, wrapperspb.BytesValue]
	savePlaylist  *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	subscribe     *connect.Client[emptypb.Empty, structpb.Struct]
}

// Cover is a cover image returned by the server.
type Cover struct {
	Data     []byte
	MIMEType string
	Source   string
}

// NewClient creates a client for the server at baseURL. A non-empty token is
// sent with every request.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenInterceptor(token)))
	}

	return &Client{
		play:          connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayProcedure, opts...),
		pause:         connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PauseProcedure, opts...),
		stop:          connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StopProcedure, opts...),
		next:          connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+NextProcedure, opts...),
		previous:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PreviousProcedure, opts...),
		seek:          connect.NewClient[durationpb.Duration, structpb.Struct](httpClient, baseURL+SeekProcedure, opts...),
		setVolume:     connect.NewClient[wrapperspb.Int32Value, structpb.Struct](httpClient, baseURL+SetVolumeProcedure, opts...),
		setShuffle:    connect.NewClient[wrapperspb.BoolValue, structpb.Struct](httpClient, baseURL+SetShuffleProcedure, opts...),
		setRepeat:     connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+SetRepeatProcedure, opts...),
		jumpTo:        connect.NewClient[wrapperspb.Int32Value, structpb.Struct](httpClient, baseURL+JumpToProcedure, opts...),
		load:          connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+LoadProcedure, opts...),
		remove:        connect.NewClient[wrapperspb.Int32Value, structpb.Struct](httpClient, baseURL+RemoveProcedure, opts...),
		move:          connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+MoveProcedure, opts...),
		search:        connect.NewClient[wrapperspb.StringValue, structpb.ListValue](httpClient, baseURL+SearchProcedure, opts...),
		searchLibrary: connect.NewClient[wrapperspb.StringValue, structpb.ListValue](httpClient, baseURL+SearchLibraryProcedure, opts...),
		listTracks:    connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+ListTracksProcedure, opts...),
		getStatus:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		getCover:      connect.NewClient[wrapperspb.Int32Value, wrapperspb.BytesValue](httpClient, baseURL+GetCoverProcedure, opts...),
		savePlaylist:  connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SavePlaylistProcedure, opts...),
		subscribe:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// Play starts or resumes playback.
func (c *Client) Play(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.play, &emptypb.Empty{})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.pause, &emptypb.Empty{})
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.stop, &emptypb.Empty{})
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.next, &emptypb.Empty{})
}

// Previous goes back to the previous track.
func (c *Client) Previous(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.previous, &emptypb.Empty{})
}

// Seek moves the playback position.
func (c *Client) Seek(ctx context.Context, position time.Duration) (*StatusView, error) {
	return callStatus(ctx, c.seek, durationpb.New(position))
}

// SetVolume sets the volume.
func (c *Client) SetVolume(ctx context.Context, level int) (*StatusView, error) {
	return callStatus(ctx, c.setVolume, wrapperspb.Int32(int32(level)))
}

// SetShuffle enables or disables shuffle.
func (c *Client) SetShuffle(ctx context.Context, enabled bool) (*StatusView, error) {
	return callStatus(ctx, c.setShuffle, wrapperspb.Bool(enabled))
}

// SetRepeat sets the repeat mode.
func (c *Client) SetRepeat(ctx context.Context, mode string) (*StatusView, error) {
	return callStatus(ctx, c.setRepeat, wrapperspb.String(mode))
}

// JumpTo plays the playlist entry at index.
func (c *Client) JumpTo(ctx context.Context, index int) (*StatusView, error) {
	return callStatus(ctx, c.jumpTo, wrapperspb.Int32(int32(index)))
}

// Remove removes the playlist entry at index.
func (c *Client) Remove(ctx context.Context, index int) (*StatusView, error) {
	return callStatus(ctx, c.remove, wrapperspb.Int32(int32(index)))
}

// Move reorders the playlist.
func (c *Client) Move(ctx context.Context, from, to int) (*StatusView, error) {
	msg, err := toStruct(map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, err
	}
	return callStatus(ctx, c.move, msg)
}

// Load loads server-side paths into the playlist. When nothing could be
// loaded the returned error is accompanied by the result describing why.
func (c *Client) Load(ctx context.Context, paths []string, replace bool) (*LoadResultView, error) {
	msg, err := toStruct(map[string]any{
		"paths":   lo.Map(paths, func(p string, _ int) any { return p }),
		"replace": replace,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.load.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return loadResultFromError(err), fromConnectError(err)
	}
	var result LoadResultView
	if err := decodeStruct(resp.Msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search returns the playlist entries matching query.
func (c *Client) Search(ctx context.Context, query string) ([]TrackView, error) {
	return callList(ctx, c.search, wrapperspb.String(query))
}

// SearchLibrary returns the library tracks matching query.
func (c *Client) SearchLibrary(ctx context.Context, query string) ([]TrackView, error) {
	return callList(ctx, c.searchLibrary, wrapperspb.String(query))
}

// ListTracks returns the playlist.
func (c *Client) ListTracks(ctx context.Context) ([]TrackView, error) {
	return callList(ctx, c.listTracks, &emptypb.Empty{})
}

// Status returns the playback snapshot.
func (c *Client) Status(ctx context.Context) (*StatusView, error) {
	return callStatus(ctx, c.getStatus, &emptypb.Empty{})
}

// Cover returns the cover of the playlist entry at index (-1 for the current track).
func (c *Client) Cover(ctx context.Context, index int) (*Cover, error) {
	resp, err := c.getCover.CallUnary(ctx, connect.NewRequest(wrapperspb.Int32(int32(index))))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return &Cover{
		Data:     resp.Msg.GetValue(),
		MIMEType: resp.Header().Get(CoverMIMEHeader),
		Source:   resp.Header().Get(CoverSourceHeader),
	}, nil
}

// SavePlaylist writes the playlist to an M3U file on the server.
func (c *Client) SavePlaylist(ctx context.Context, path string) error {
	_, err := c.savePlaylist.CallUnary(ctx, connect.NewRequest(wrapperspb.String(path)))
	return fromConnectError(err)
}

// Subscribe calls fn for every notification until ctx is done, the server
// closes the stream or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(NotificationView) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return fromConnectError(err)
	}
	defer stream.Close()

	for stream.Receive() {
		var n NotificationView
		if err := decodeStruct(stream.Msg(), &n); err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	err = stream.Err()
	if err == nil || errors.Is(err, context.Canceled) || connect.CodeOf(err) == connect.CodeCanceled {
		return nil
	}
	return fromConnectError(err)
}

func callStatus[Req any](ctx context.Context, client *connect.Client[Req, structpb.Struct], msg *Req) (*StatusView, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnectError(err)
	}
	var status StatusView
	if err := decodeStruct(resp.Msg, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func callList[Req any](ctx context.Context, client *connect.Client[Req, structpb.ListValue], msg *Req) ([]TrackView, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, fromConnectError(err)
	}
	var tracks []TrackView
	if err := decodeValue(resp.Msg.AsSlice(), &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// loadResultFromError extracts the load result attached to a failed Load.
func loadResultFromError(err error) *LoadResultView {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return nil
	}
	for _, detail := range cerr.Details() {
		value, valueErr := detail.Value()
		if valueErr != nil {
			continue
		}
		msg, ok := value.(*structpb.Struct)
		if !ok {
			continue
		}
		var result LoadResultView
		if decodeStruct(msg, &result) == nil {
			return &result
		}
	}
	return nil
}
