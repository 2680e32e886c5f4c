package connect

import (
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/groovebox/internal/app/library"
	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/app/session"
	"github.com/osa030/groovebox/internal/domain/failure"
	"github.com/osa030/groovebox/internal/domain/track"
)

// FailureCodeKey is the error metadata key carrying the failure code.
const FailureCodeKey = "Groovebox-Failure-Code"

// TrackView is the wire form of a track.
type TrackView struct {
	Index      int    `mapstructure:"index"`
	Path       string `mapstructure:"path"`
	Title      string `mapstructure:"title"`
	Artist     string `mapstructure:"artist"`
	Album      string `mapstructure:"album"`
	DurationMs int64  `mapstructure:"duration_ms"`
	HasCover   bool   `mapstructure:"has_cover"`
}

// Duration returns the track duration.
func (t TrackView) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// StatusView is the wire form of a playback snapshot.
type StatusView struct {
	State           string     `mapstructure:"state"`
	Index           int        `mapstructure:"index"`
	PositionMs      int64      `mapstructure:"position_ms"`
	DurationMs      int64      `mapstructure:"duration_ms"`
	Volume          int        `mapstructure:"volume"`
	Shuffle         bool       `mapstructure:"shuffle"`
	Repeat          string     `mapstructure:"repeat"`
	PlaylistLen     int        `mapstructure:"playlist_len"`
	TotalDurationMs int64      `mapstructure:"total_duration_ms"`
	Track           *TrackView `mapstructure:"track"`
}

// Position returns the playback position.
func (s StatusView) Position() time.Duration {
	return time.Duration(s.PositionMs) * time.Millisecond
}

// NotificationView is the wire form of a notification.
type NotificationView struct {
	Type       string     `mapstructure:"type"`
	SequenceNo uint64     `mapstructure:"sequence_no"`
	Message    string     `mapstructure:"message"`
	Status     StatusView `mapstructure:"status"`
}

// SkippedView is a path that could not be loaded.
type SkippedView struct {
	Path  string `mapstructure:"path"`
	Error string `mapstructure:"error"`
}

// RejectedView is a track the import filters refused.
type RejectedView struct {
	Path string `mapstructure:"path"`
	Code string `mapstructure:"code"`
}

// LoadResultView is the wire form of a load result.
type LoadResultView struct {
	Added    int            `mapstructure:"added"`
	Skipped  []SkippedView  `mapstructure:"skipped"`
	Rejected []RejectedView `mapstructure:"rejected"`
}

func trackMap(index int, t track.Track) map[string]any {
	return map[string]any{
		"index":       index,
		"path":        t.Path,
		"title":       t.DisplayTitle(),
		"artist":      t.Artist,
		"album":       t.Album,
		"duration_ms": t.Duration.Milliseconds(),
		"has_cover":   t.HasCover(),
	}
}

func statusMap(s playback.Status) map[string]any {
	m := map[string]any{
		"state":             s.State.String(),
		"index":             s.Index,
		"position_ms":       s.Position.Milliseconds(),
		"duration_ms":       s.Duration.Milliseconds(),
		"volume":            s.Volume,
		"shuffle":           s.Shuffle,
		"repeat":            s.Repeat.String(),
		"playlist_len":      s.PlaylistLen,
		"total_duration_ms": s.TotalDuration.Milliseconds(),
	}
	if s.Track != nil {
		m["track"] = trackMap(s.Index, *s.Track)
	}
	return m
}

func statusStruct(s playback.Status) (*structpb.Struct, error) {
	return toStruct(statusMap(s))
}

func notificationStruct(n *notification.Notification) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"type":        string(n.Type),
		"sequence_no": n.SequenceNo,
		"message":     n.Message,
		"status":      statusMap(n.Status),
	})
}

func loadResultStruct(r session.LoadResult) (*structpb.Struct, error) {
	skipped := lo.Map(r.Skipped, func(s library.Skipped, _ int) any {
		return map[string]any{"path": s.Path, "error": s.Err.Error()}
	})
	rejected := lo.Map(r.Rejected, func(rj session.Rejection, _ int) any {
		return map[string]any{"path": rj.Path, "code": rj.Code}
	})
	return toStruct(map[string]any{
		"added":    r.Added,
		"skipped":  skipped,
		"rejected": rejected,
	})
}

func tracksList(indices []int, tracks []track.Track) (*structpb.ListValue, error) {
	values := make([]any, len(tracks))
	for i, t := range tracks {
		values[i] = trackMap(indices[i], t)
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tracks")
	}
	return list, nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	return s, nil
}

// decodeStruct decodes a Struct produced by this package into out.
func decodeStruct(s *structpb.Struct, out any) error {
	return decodeValue(s.AsMap(), out)
}

func decodeValue(in any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(in); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}

// connectCode maps a failure to the Connect code clients see.
func connectCode(err error) connect.Code {
	switch {
	case errors.Is(err, failure.ErrEmptyPlaylist), errors.Is(err, failure.ErrNotPlaying):
		return connect.CodeFailedPrecondition
	case errors.Is(err, failure.ErrInvalidRange):
		return connect.CodeOutOfRange
	case errors.Is(err, failure.ErrUnsupportedFormat), errors.Is(err, failure.ErrMetadataRead):
		return connect.CodeInvalidArgument
	case errors.Is(err, failure.ErrBackendIO):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError converts err into a Connect error carrying its failure code.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	cerr = connect.NewError(connectCode(err), err)
	cerr.Meta().Set(FailureCodeKey, failure.Code(err))
	return cerr
}

// failureKinds maps failure codes back to their sentinels.
var failureKinds = map[string]error{
	"empty_playlist":     failure.ErrEmptyPlaylist,
	"not_playing":        failure.ErrNotPlaying,
	"invalid_range":      failure.ErrInvalidRange,
	"unsupported_format": failure.ErrUnsupportedFormat,
	"metadata_read":      failure.ErrMetadataRead,
	"backend_io":         failure.ErrBackendIO,
}

// fromConnectError marks a client-side error with the failure sentinel the
// server reported, so callers can classify it with errors.Is.
func fromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if kind, ok := failureKinds[cerr.Meta().Get(FailureCodeKey)]; ok {
		return errors.Mark(err, kind)
	}
	return err
}
