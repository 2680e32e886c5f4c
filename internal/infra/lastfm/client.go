// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// maxImageBytes bounds downloaded cover images.
const maxImageBytes = 8 << 20

// ErrNotFound is returned when Last.fm has no image for an album.
var ErrNotFound = errors.New("album art not found")

// imageSizes lists Last.fm image sizes, largest first.
var imageSizes = []string{"mega", "extralarge", "large", "medium", "small"}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Album art URL per artist/album ("" when Last.fm has none)
	artCache map[string]string
	cacheMu  sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	Timeout time.Duration // HTTP timeout (0 uses 10s)
}

// GetAlbumInfoResponse represents the response from album.getInfo API.
type GetAlbumInfoResponse struct {
	Album struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		Image  []struct {
			URL  string `json:"#text"`
			Size string `json:"size"`
		} `json:"image"`
	} `json:"album"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: timeout},
		artCache:   make(map[string]string),
	}, nil
}

// AlbumArtURL returns the URL of the largest cover image Last.fm has for an album.
// Reference: https://www.last.fm/api/show/album.getInfo
func (c *Client) AlbumArtURL(ctx context.Context, artistName, albumName string) (string, error) {
	if artistName == "" || albumName == "" {
		return "", errors.New("artist name and album name are required")
	}

	cacheKey := fmt.Sprintf("album:%s:%s", strings.ToLower(artistName), strings.ToLower(albumName))
	c.cacheMu.RLock()
	if u, ok := c.artCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached album art for: %s - %s", artistName, albumName)
		if u == "" {
			return "", ErrNotFound
		}
		return u, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("method", "album.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artistName)
	params.Set("album", albumName)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	body, err := c.get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		// 6: album not found
		if apiError.Error == 6 {
			c.storeArt(cacheKey, "")
			return "", ErrNotFound
		}
		return "", errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}

	var response GetAlbumInfoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}

	bySize := make(map[string]string, len(response.Album.Image))
	for _, img := range response.Album.Image {
		if img.URL != "" {
			bySize[img.Size] = img.URL
		}
	}
	for _, size := range imageSizes {
		if u, ok := bySize[size]; ok {
			c.storeArt(cacheKey, u)
			return u, nil
		}
	}

	c.storeArt(cacheKey, "")
	return "", ErrNotFound
}

// FetchImage downloads an image.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	return c.get(ctx, imageURL)
}

// AlbumArt looks up and downloads the cover image of an album.
func (c *Client) AlbumArt(ctx context.Context, artistName, albumName string) ([]byte, error) {
	u, err := c.AlbumArtURL(ctx, artistName, albumName)
	if err != nil {
		return nil, err
	}
	return c.FetchImage(ctx, u)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusNotFound {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *Client) storeArt(key, u string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.artCache[key] = u
}
