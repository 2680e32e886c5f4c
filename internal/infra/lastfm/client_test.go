package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	client, err := New(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestAlbumArtURL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "album.getInfo", r.URL.Query().Get("method"))
		assert.Equal(t, "Queen", r.URL.Query().Get("artist"))
		assert.Equal(t, "A Night at the Opera", r.URL.Query().Get("album"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))

		response := `{
			"album": {
				"name": "A Night at the Opera",
				"artist": "Queen",
				"image": [
					{"#text": "https://img.example/small.png", "size": "small"},
					{"#text": "https://img.example/xl.png", "size": "extralarge"},
					{"#text": "", "size": "mega"}
				]
			}
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	ctx := context.Background()
	u, err := client.AlbumArtURL(ctx, "Queen", "A Night at the Opera")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/xl.png", u)

	// Cached, case-insensitively
	cached, err := client.AlbumArtURL(ctx, "queen", "a night at the opera")
	require.NoError(t, err)
	assert.Equal(t, u, cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlbumArtURL_NotFound(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "api error 6", response: `{"error": 6, "message": "Album not found"}`},
		{name: "no images", response: `{"album": {"name": "x", "image": [{"#text": "", "size": "large"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				fmt.Fprint(w, tt.response)
			}))
			defer server.Close()

			client, err := New(Config{APIKey: "k"})
			require.NoError(t, err)
			client.baseURL = server.URL + "/"

			_, err = client.AlbumArtURL(context.Background(), "Artist", "Album")
			assert.True(t, errors.Is(err, ErrNotFound))

			// Misses are cached too
			_, err = client.AlbumArtURL(context.Background(), "Artist", "Album")
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestAlbumArtURL_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": 10, "message": "Invalid API key"}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "bad"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	_, err = client.AlbumArtURL(context.Background(), "Artist", "Album")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Invalid API key")

	_, err = client.AlbumArtURL(context.Background(), "", "Album")
	assert.Error(t, err)
}

func TestAlbumArt(t *testing.T) {
	image := []byte("\x89PNG fake image bytes")
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"album": {"image": [{"#text": "%s/img/cover.png", "size": "large"}]}}`, server.URL)
	})
	mux.HandleFunc("/img/cover.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(image)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/api/"

	data, err := client.AlbumArt(context.Background(), "Artist", "Album")
	require.NoError(t, err)
	assert.Equal(t, image, data)

	_, err = client.FetchImage(context.Background(), server.URL+"/img/missing.png")
	assert.Error(t, err)
}
