package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"faceomatic/internal/config"
	"faceomatic/internal/fileutil"
)

const (
	markerExt = ".json"
	listBatch = 64
)

// Store persists job markers in a single directory.
type Store struct {
	dir string
	// mu serialises check-then-rename sequences inside this process. Marker
	// renames are atomic on their own; the mutex keeps Register's
	// "no marker in any state" check consistent with its create.
	mu sync.Mutex
}

// Open returns a store rooted at the configured programs directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return NewStore(cfg.Paths.ProgramsDir)
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("programs directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create programs directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the programs directory.
func (s *Store) Dir() string { return s.dir }

// ValidateID rejects ids that would escape the programs directory or collide
// with marker prefixes.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "" || id != strings.TrimSpace(id):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`+"\x00"), id == "." || id == "..":
		return fmt.Errorf("%w: %q contains path characters", ErrInvalidID, id)
	case strings.ContainsAny(id[:1], "_~!."):
		return fmt.Errorf("%w: %q starts with a marker prefix", ErrInvalidID, id)
	}
	return nil
}

func (s *Store) markerPath(id string, state State) string {
	return filepath.Join(s.dir, markerPrefix[state]+id+markerExt)
}

// Register persists job as Unprocessed. It returns false without error when a
// marker for the id already exists in any state.
func (s *Store) Register(job Job) (bool, error) {
	if err := ValidateID(job.ID); err != nil {
		return false, err
	}
	if job.RegisteredAt.IsZero() {
		job.RegisteredAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.stateLocked(job.ID)
	if err != nil {
		return false, err
	}
	if current != StateUnregistered {
		return false, nil
	}

	staging := filepath.Join(s.dir, ".register-"+job.ID+".tmp")
	if err := fileutil.WriteFileAtomic(staging, append(data, '\n'), 0o644); err != nil {
		return false, fmt.Errorf("stage job %s: %w", job.ID, err)
	}
	defer os.Remove(staging)

	// Link is create-if-absent, so a concurrent writer outside this process
	// cannot be clobbered.
	if err := os.Link(staging, s.markerPath(job.ID, StateUnprocessed)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("register job %s: %w", job.ID, err)
	}
	return true, nil
}

// State reports the job's current state, StateUnregistered when no marker exists.
func (s *Store) State(id string) (State, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(id)
}

func (s *Store) stateLocked(id string) (State, error) {
	found := StateUnregistered
	for _, state := range markerStates {
		_, err := os.Lstat(s.markerPath(id, state))
		switch {
		case err == nil:
			if found != StateUnregistered {
				return found, fmt.Errorf("%w: %s (%s and %s)", ErrInconsistent, id, found, state)
			}
			found = state
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", fmt.Errorf("stat marker for %s: %w", id, err)
		}
	}
	return found, nil
}

// IsRegistered reports whether any marker exists for id.
func (s *Store) IsRegistered(id string) (bool, error) {
	state, err := s.State(id)
	if err != nil && !errors.Is(err, ErrInconsistent) {
		return false, err
	}
	return state != StateUnregistered, nil
}

// Load returns the job description stored in the current marker.
func (s *Store) Load(id string) (Job, State, error) {
	state, err := s.State(id)
	if err != nil {
		return Job{}, state, err
	}
	if state == StateUnregistered {
		return Job{}, state, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	data, err := os.ReadFile(s.markerPath(id, state))
	if err != nil {
		return Job{}, state, fmt.Errorf("read marker for %s: %w", id, err)
	}
	var job Job
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &job); err != nil {
			return Job{}, state, fmt.Errorf("decode marker for %s: %w", id, err)
		}
	}
	if job.ID == "" {
		job.ID = id
	}
	return job, state, nil
}

// ListUnprocessed yields the ids of Unprocessed jobs. Each range over the
// returned sequence re-reads the directory, so it can be restarted; ids are
// read in batches rather than all at once.
func (s *Store) ListUnprocessed() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dir, err := os.Open(s.dir)
		if err != nil {
			yield("", fmt.Errorf("open programs directory: %w", err))
			return
		}
		defer dir.Close()

		for {
			entries, err := dir.ReadDir(listBatch)
			for _, entry := range entries {
				id, state, ok := parseMarkerName(entry.Name())
				if !ok || state != StateUnprocessed || entry.IsDir() {
					continue
				}
				if !yield(id, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("read programs directory: %w", err))
				return
			}
		}
	}
}

// List returns every registered job, sorted by id.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read programs directory: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, state, ok := parseMarkerName(entry.Name())
		if !ok {
			continue
		}
		item := Entry{ID: id, State: state}
		if info, err := entry.Info(); err == nil {
			item.UpdatedAt = info.ModTime().UTC()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID == out[j].ID {
			return out[i].State < out[j].State
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Counts returns the number of jobs per state.
func (s *Store) Counts() (map[State]int, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[State]int, len(markerStates))
	for _, entry := range entries {
		counts[entry.State]++
	}
	return counts, nil
}

func parseMarkerName(name string) (string, State, bool) {
	if !strings.HasSuffix(name, markerExt) || strings.HasPrefix(name, ".") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, markerExt)
	if base == "" {
		return "", "", false
	}
	for _, state := range []State{StateUnprocessed, StateProcessing, StateFailed} {
		prefix := markerPrefix[state]
		if strings.HasPrefix(base, prefix) {
			id := strings.TrimPrefix(base, prefix)
			if id == "" {
				return "", "", false
			}
			return id, state, true
		}
	}
	return base, StateProcessed, true
}
