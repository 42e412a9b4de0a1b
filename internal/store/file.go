package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/hijabist/internal/logger"
)

// FileStore keeps State in a single JSON file. Writes go through a temp file
// and a rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state, migrating legacy documents. A missing file yields an
// empty state.
func (s *FileStore) Load(_ context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read state file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return NewState(), nil
	}

	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("could not parse state file: %w", err)
	}

	if probe.Version == nil {
		state, err := migrateLegacy(data)
		if err != nil {
			return nil, fmt.Errorf("could not migrate legacy state: %w", err)
		}
		logger.WithField("path", s.path).Info("migrated legacy state file")
		return state, nil
	}
	if *probe.Version > SchemaVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", *probe.Version, SchemaVersion)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("could not parse state file: %w", err)
	}
	if state.Analyses == nil {
		state.Analyses = make(map[string][]SavedAnalysis)
	}
	state.Version = SchemaVersion
	return state, nil
}

func (s *FileStore) save(state *State) error {
	state.Version = SchemaVersion
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("could not sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("could not replace state file: %w", err)
	}
	return nil
}

// update loads, mutates and saves the state under the lock.
func (s *FileStore) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.save(state)
}

// LoadSession returns the persisted login, or nil.
func (s *FileStore) LoadSession(ctx context.Context) (*SessionRecord, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Session, nil
}

// SaveSession persists rec and adopts analyses migrated for its email.
func (s *FileStore) SaveSession(_ context.Context, rec *SessionRecord) error {
	if rec == nil || rec.UID == "" {
		return errors.New("session record requires a uid")
	}
	return s.update(func(state *State) error {
		state.Session = rec
		legacyKey := legacyUserKey(rec.Email)
		if legacy, ok := state.Analyses[legacyKey]; ok {
			state.Analyses[rec.UID] = append(state.Analyses[rec.UID], legacy...)
			sortNewestFirst(state.Analyses[rec.UID])
			delete(state.Analyses, legacyKey)
		}
		return nil
	})
}

// ClearSession removes the persisted login. Saved analyses stay.
func (s *FileStore) ClearSession(_ context.Context) error {
	return s.update(func(state *State) error {
		state.Session = nil
		return nil
	})
}

// RememberedEmail returns the email remembered at login.
func (s *FileStore) RememberedEmail(ctx context.Context) (string, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return state.RememberEmail, nil
}

// SetRememberedEmail stores email for the next login. Empty clears it.
func (s *FileStore) SetRememberedEmail(_ context.Context, email string) error {
	return s.update(func(state *State) error {
		state.RememberEmail = email
		return nil
	})
}

// AppendAnalysis adds a to the user's history.
func (s *FileStore) AppendAnalysis(_ context.Context, userID string, a SavedAnalysis) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	return s.update(func(state *State) error {
		list := append([]SavedAnalysis{a}, state.Analyses[userID]...)
		sortNewestFirst(list)
		state.Analyses[userID] = list
		return nil
	})
}

// ListAnalyses returns the user's history, newest first.
func (s *FileStore) ListAnalyses(ctx context.Context, userID string) ([]SavedAnalysis, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	list := append([]SavedAnalysis(nil), state.Analyses[userID]...)
	sortNewestFirst(list)
	return list, nil
}

func sortNewestFirst(list []SavedAnalysis) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date)
	})
}
