package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("GROOVEBOX_TOKEN", "")
	t.Setenv("LASTFM_API_KEY", "")

	cfg, err := Parse([]byte("library:\n  dirs: [music]\n"), "/srv/groovebox")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.Token)
	assert.Equal(t, OutputSpeaker, cfg.Player.Output)
	assert.Equal(t, 44100, cfg.Player.SampleRate)
	assert.Equal(t, time.Second, cfg.Player.TickInterval())
	assert.Equal(t, 3*time.Second, cfg.Player.PreviousRestartThreshold())
	assert.Equal(t, 100*time.Millisecond, cfg.Player.Buffer())
	assert.Equal(t, 50, cfg.Player.InitialVolume)
	assert.Equal(t, "off", cfg.Player.Repeat)
	assert.Equal(t, 2*time.Second, cfg.Library.Debounce())
	assert.Equal(t, 300, cfg.Artwork.Size)
	assert.Equal(t, 64, cfg.Artwork.CacheSize)
	assert.Equal(t, 10*time.Second, cfg.LastFM.Timeout())
	assert.Equal(t, "info", cfg.Log.Level)

	// Relative paths resolve against the config directory
	assert.Equal(t, []string{filepath.Join("/srv/groovebox", "music")}, cfg.Library.Dirs)
	assert.Equal(t, filepath.Join("/srv/groovebox", "groovebox-state.yaml"), cfg.State.Path)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			yaml: `
server:
  addr: "127.0.0.1:9000"
player:
  output: "null"
  repeat: all
  initial_volume: 80
library:
  dirs: [/music]
  watch: true
`,
		},
		{
			name:    "unknown output",
			yaml:    "player:\n  output: alsa\n",
			wantErr: true,
			errMsg:  "Output",
		},
		{
			name:    "unknown repeat mode",
			yaml:    "player:\n  repeat: sometimes\n",
			wantErr: true,
			errMsg:  "Repeat",
		},
		{
			name:    "volume out of range",
			yaml:    "player:\n  initial_volume: 150\n",
			wantErr: true,
			errMsg:  "InitialVolume",
		},
		{
			name:    "empty library dir",
			yaml:    "library:\n  dirs: [\"\"]\n",
			wantErr: true,
			errMsg:  "Dirs",
		},
		{
			name:    "artwork too small",
			yaml:    "artwork:\n  size: 4\n",
			wantErr: true,
			errMsg:  "Size",
		},
		{
			name:    "broken yaml",
			yaml:    "server: [",
			wantErr: true,
			errMsg:  "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("GROOVEBOX_TOKEN", "env-token")
	t.Setenv("LASTFM_API_KEY", "env-key")

	cfg, err := Parse([]byte("server:\n  token: file-token\nlastfm:\n  api_key: file-key\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Server.Token)
	assert.Equal(t, "env-key", cfg.LastFM.APIKey)
}

func TestLoad(t *testing.T) {
	t.Setenv("GROOVEBOX_TOKEN", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "groovebox.yaml")
	content := `
state:
  path: /var/lib/groovebox/state.yaml
filters:
  duration_limit_filter:
    enabled: true
    settings:
      max_minutes: 10
  extension_filter:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/groovebox/state.yaml", cfg.State.Path)
	assert.True(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("extension_filter"))
	assert.False(t, cfg.IsFilterEnabled("missing_filter"))
	assert.Equal(t, map[string]any{"max_minutes": 10}, cfg.FilterSettings("duration_limit_filter"))
	assert.Nil(t, cfg.FilterSettings("missing_filter"))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Setenv("GROOVEBOX_TOKEN", "")
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, OutputSpeaker, cfg.Player.Output)
	assert.Empty(t, cfg.Library.Dirs)
}
