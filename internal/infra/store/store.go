// Package store persists player state in a YAML file.
package store

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/groovebox/internal/domain/failure"
)

// State is the player state kept across restarts.
type State struct {
	Paths   []string `yaml:"paths"`
	Index   int      `yaml:"index"`
	Volume  int      `yaml:"volume"`
	Shuffle bool     `yaml:"shuffle"`
	Repeat  string   `yaml:"repeat"`
}

// Store reads and writes State at a fixed path.
type Store struct {
	path string
}

// New creates a store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved state. ok is false when no state was saved yet.
func (s *Store) Load() (state State, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, failure.Mark(err, failure.ErrBackendIO, "failed to read state file")
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, false, errors.Wrap(err, "failed to parse state file")
	}
	if state.Index < -1 || state.Index >= len(state.Paths) {
		state.Index = min(0, len(state.Paths)-1)
	}
	return state, true, nil
}

// Save writes state atomically by renaming a temporary file into place.
func (s *Store) Save(state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to encode state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "failed to create state directory")
	}

	tmp, err := os.CreateTemp(dir, ".groovebox-state-*")
	if err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return failure.Mark(err, failure.ErrBackendIO, "failed to write state")
	}
	if err := tmp.Close(); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "failed to close state file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return failure.Mark(err, failure.ErrBackendIO, "failed to replace state file")
	}

	zlog.Debug().Msgf("store: saved %d paths to %s", len(state.Paths), s.path)
	return nil
}
