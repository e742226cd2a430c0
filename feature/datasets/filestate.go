package datasets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStatus tells whether an output file is known to exist.
type FileStatus string

const (
	StatusNotExists FileStatus = "NOT_EXISTS"
	StatusExists    FileStatus = "EXISTS"
)

// FileState tracks one output file across export runs. LastTsSaved is the
// watermark: the maximum timestamp value already written to the file.
type FileState struct {
	Status      FileStatus `json:"status"`
	LastTsSaved int64      `json:"last_ts_saved"`
	ModifiedTs  int64      `json:"modified_ts"`
}

// StateRegistry owns the FileState map, keyed by output file path. States
// are created lazily on first reference, mutated by every write, and
// persisted as a JSON snapshot so watermarks survive restarts.
type StateRegistry struct {
	path   string
	states map[string]*FileState
}

// LoadStates reads the state snapshot at path. A missing snapshot yields
// an empty registry.
func LoadStates(path string) (*StateRegistry, error) {
	r := &StateRegistry{path: path, states: make(map[string]*FileState)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read state snapshot: %v", ErrOutputIO, err)
	}
	if err := json.Unmarshal(data, &r.states); err != nil {
		return nil, fmt.Errorf("failed to parse state snapshot %s: %w", path, err)
	}
	return r, nil
}

// Get returns the state for an output path, creating it on first
// reference.
func (r *StateRegistry) Get(path string) *FileState {
	if s, ok := r.states[path]; ok {
		return s
	}
	s := &FileState{Status: StatusNotExists}
	r.states[path] = s
	return s
}

// Watermark returns the stored watermark for a path, zero when untracked.
func (r *StateRegistry) Watermark(path string) int64 {
	if s, ok := r.states[path]; ok {
		return s.LastTsSaved
	}
	return 0
}

// MinWatermark returns the smallest watermark across the tracked files
// matching an output pattern (everything before the %s placeholder is
// treated as a literal prefix). A fan-out delta query must not miss rows
// for the file that is furthest behind.
func (r *StateRegistry) MinWatermark(pattern string) int64 {
	prefix := pattern
	if i := strings.Index(pattern, "%s"); i >= 0 {
		prefix = pattern[:i]
	}

	var min int64
	first := true
	for path, s := range r.states {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if first || s.LastTsSaved < min {
			min = s.LastTsSaved
			first = false
		}
	}
	if first {
		return 0
	}
	return min
}

// Touch re-evaluates a tracked file against the filesystem without writing
// anything. Zero-row exports use it so state stays consistent.
func (r *StateRegistry) Touch(path string) {
	s := r.Get(path)
	if _, err := os.Stat(path); err == nil {
		s.Status = StatusExists
	} else {
		s.Status = StatusNotExists
	}
	s.ModifiedTs = time.Now().Unix()
}

// Save writes the snapshot back to disk atomically.
func (r *StateRegistry) Save() error {
	data, err := json.MarshalIndent(r.states, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputIO, err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write state snapshot: %v", ErrOutputIO, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("%w: failed to replace state snapshot: %v", ErrOutputIO, err)
	}
	return nil
}
