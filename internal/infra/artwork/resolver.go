// Package artwork resolves cover images for tracks.
package artwork

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/tags"
)

const (
	DefaultSize      = 300
	DefaultCacheSize = 64
	pngMIME          = "image/png"
)

// Source tells where a cover image came from.
type Source string

const (
	SourceEmbedded    Source = "embedded"
	SourceRemote      Source = "remote"
	SourcePlaceholder Source = "placeholder"
)

// Image is a processed cover image.
type Image struct {
	Data     []byte
	MIMEType string
	Source   Source
}

// PictureReader reads embedded pictures from audio files.
type PictureReader interface {
	Picture(path string) (*tags.Picture, error)
}

// AlbumArtFetcher downloads album art from a remote service.
type AlbumArtFetcher interface {
	AlbumArt(ctx context.Context, artist, album string) ([]byte, error)
}

// Config holds resolver settings.
type Config struct {
	Size      int // Thumbnail side in pixels
	CacheSize int // Number of cached covers
}

// Resolver finds, processes and caches cover images.
type Resolver struct {
	pictures PictureReader
	remote   AlbumArtFetcher
	size     int
	cache    *lru.Cache[string, *Image]
}

// NewResolver creates a resolver. remote may be nil.
func NewResolver(pictures PictureReader, remote AlbumArtFetcher, cfg Config) (*Resolver, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Image](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create artwork cache")
	}

	return &Resolver{
		pictures: pictures,
		remote:   remote,
		size:     cfg.Size,
		cache:    cache,
	}, nil
}

// Cover returns the cover of t. Embedded pictures are preferred, then remote
// album art, then a generated placeholder; it only fails if the placeholder
// cannot be rendered.
func (r *Resolver) Cover(ctx context.Context, t track.Track) (*Image, error) {
	if img, ok := r.cache.Get(t.Path); ok {
		return img, nil
	}

	img := r.embedded(t)
	if img == nil {
		img = r.fetchRemote(ctx, t)
	}
	if img == nil {
		data, err := Placeholder(placeholderKey(t), r.size)
		if err != nil {
			return nil, err
		}
		img = &Image{Data: data, MIMEType: pngMIME, Source: SourcePlaceholder}
	}

	r.cache.Add(t.Path, img)
	return img, nil
}

// Len returns the number of cached covers.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// Purge drops all cached covers.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

func (r *Resolver) embedded(t track.Track) *Image {
	if r.pictures == nil || !t.HasCover() {
		return nil
	}
	pic, err := r.pictures.Picture(t.Path)
	if err != nil {
		zlog.Debug().Err(err).Msgf("artwork: no embedded picture in %s", t.Path)
		return nil
	}
	data, err := Process(pic.Data, r.size)
	if err != nil {
		zlog.Warn().Err(err).Msgf("artwork: failed to process embedded picture of %s", t.Path)
		return nil
	}
	return &Image{Data: data, MIMEType: pngMIME, Source: SourceEmbedded}
}

func (r *Resolver) fetchRemote(ctx context.Context, t track.Track) *Image {
	if r.remote == nil || t.Artist == "" || t.Album == "" {
		return nil
	}
	raw, err := r.remote.AlbumArt(ctx, t.Artist, t.Album)
	if err != nil {
		zlog.Debug().Err(err).Msgf("artwork: no remote art for %s - %s", t.Artist, t.Album)
		return nil
	}
	data, err := Process(raw, r.size)
	if err != nil {
		zlog.Warn().Err(err).Msgf("artwork: failed to process remote art for %s - %s", t.Artist, t.Album)
		return nil
	}
	return &Image{Data: data, MIMEType: pngMIME, Source: SourceRemote}
}

func placeholderKey(t track.Track) string {
	if t.Album != "" {
		return strings.ToLower(t.Artist + "\x00" + t.Album)
	}
	return t.Path
}
