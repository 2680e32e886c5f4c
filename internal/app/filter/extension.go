package filter

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/domain/track"
)

// ExtensionConfig represents the configuration for ExtensionFilter.
type ExtensionConfig struct {
	Allowed []string `yaml:"allowed" mapstructure:"allowed" default:"[\".mp3\",\".flac\",\".wav\",\".ogg\"]" validate:"min=1,dive,required"`
}

// ExtensionFilter only accepts files with an allowed extension.
type ExtensionFilter struct {
	allowed map[string]bool
}

// NewExtensionFilter creates a new extension filter.
func NewExtensionFilter() *ExtensionFilter {
	return &ExtensionFilter{}
}

func (f *ExtensionFilter) Name() string {
	return "extension_filter"
}

func (f *ExtensionFilter) Description() string {
	return "Accepts only files with one of the allowed extensions"
}

func (f *ExtensionFilter) ReturnCodes() []string {
	return []string{"extension_not_allowed"}
}

func (f *ExtensionFilter) ValidateConfig(settings map[string]any) error {
	var config ExtensionConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	normalized := lo.Map(config.Allowed, func(ext string, _ int) string {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	})
	f.allowed = lo.SliceToMap(normalized, func(ext string) (string, bool) {
		return ext, true
	})
	zlog.Info().Msgf("extension filter config: allowed=%v", normalized)
	return nil
}

func (f *ExtensionFilter) Check(_ context.Context, _ Query, t track.Track) Result {
	if f.allowed == nil {
		return Accept()
	}
	if !f.allowed[t.Ext()] {
		return Reject("extension_not_allowed")
	}
	return Accept()
}

func init() {
	Register("extension_filter", func() Filter {
		return NewExtensionFilter()
	})
}
