package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/docfetcher/internal/scope"
)

const (
	// StateVersion is the current schema version
	StateVersion = 1

	// StateFilename is the registry state file inside the index parent directory
	StateFilename = "registry.json"
)

// State is the persisted form of the registry. The job queue is not part of
// it.
type State struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	Scopes  []ScopeState `json:"scopes"`
}

// ScopeState stores one registry entry.
type ScopeState struct {
	Path      string                `json:"path"`
	IndexDir  string                `json:"index_dir"`
	Checked   bool                  `json:"checked"`
	Overrides []scope.CheckOverride `json:"overrides,omitempty"`
}

// NewState creates an empty state.
func NewState() *State {
	return &State{Version: StateVersion}
}

// LoadState reads the state file, or returns an empty state if it doesn't
// exist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to read registry state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse registry state: %w", err)
	}
	if state.Version != StateVersion {
		return nil, fmt.Errorf("unsupported registry state version %d", state.Version)
	}
	for _, s := range state.Scopes {
		if s.Path == "" || s.IndexDir == "" {
			return nil, fmt.Errorf("invalid registry entry %q", s.Path)
		}
	}
	return &state, nil
}

// Save writes the state to disk atomically.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename registry file: %w", err)
	}
	return nil
}

func snapshotScope(root *scope.RootScope) ScopeState {
	return ScopeState{
		Path:      root.Path(),
		IndexDir:  root.IndexDir(),
		Checked:   root.Checked(),
		Overrides: root.Overrides(),
	}
}

func restoreScope(s ScopeState) (*scope.RootScope, error) {
	root := scope.NewRootScope(filepath.Clean(s.Path), s.IndexDir)
	if !s.Checked {
		if err := root.SetChecked(root.Path(), false); err != nil {
			return nil, err
		}
	}
	if err := root.ApplyOverrides(s.Overrides); err != nil {
		return nil, err
	}
	return root, nil
}
