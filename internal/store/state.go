package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/logic"
)

const (
	dedupFile = "notify_state.json"
	relayFile = "relay_state.json"
)

// StateDir holds the dedup and relay state files.
type StateDir struct {
	mu  sync.Mutex
	dir string
}

// OpenStateDir creates dir if needed.
func OpenStateDir(dir string) (*StateDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &StateDir{dir: dir}, nil
}

// Dir returns the directory path.
func (s *StateDir) Dir() string {
	return s.dir
}

type dedupRecord struct {
	Version int                  `json:"version"`
	Last    map[string]time.Time `json:"last_reported"`
}

// LoadDedup returns the last reported anchor per detector. A missing file
// is an empty state.
func (s *StateDir) LoadDedup() (map[detect.Kind]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec dedupRecord
	if _, err := readJSON(filepath.Join(s.dir, dedupFile), &rec); err != nil {
		return nil, err
	}
	out := make(map[detect.Kind]time.Time, len(rec.Last))
	for k, v := range rec.Last {
		out[detect.Kind(k)] = v
	}
	return out, nil
}

// SaveDedup replaces the dedup state file.
func (s *StateDir) SaveDedup(last map[detect.Kind]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := dedupRecord{Version: 1, Last: make(map[string]time.Time, len(last))}
	for k, v := range last {
		rec.Last[string(k)] = v
	}
	return writeJSONAtomic(filepath.Join(s.dir, dedupFile), rec)
}

// LoadRelay returns the persisted relay state. ok is false on first run.
func (s *StateDir) LoadRelay() (logic.RelayState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st logic.RelayState
	ok, err := readJSON(filepath.Join(s.dir, relayFile), &st)
	if err != nil || !ok {
		return logic.RelayState{}, false, err
	}
	return st, true, nil
}

// SaveRelay replaces the relay state file.
func (s *StateDir) SaveRelay(st logic.RelayState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(filepath.Join(s.dir, relayFile), st)
}
