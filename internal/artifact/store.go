package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/MimeLyc/clipreel/pkg/file"
	"github.com/MimeLyc/clipreel/pkg/log"
)

const lockName = ".clipreel.lock"

var ErrLocked = errors.New("working directory is in use by another run")

// Store is the flat working directory holding every artifact of a run.
type Store struct {
	dir  string
	lock *flock.Flock
}

func OpenStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("working directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	if err := file.EnsureDir(abs); err != nil {
		return nil, err
	}
	return &Store{
		dir:  abs,
		lock: flock.New(filepath.Join(abs, lockName)),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Lock takes the advisory lock on the directory without blocking.
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.dir, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.dir)
	}
	return nil
}

func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Path returns the absolute location of an artifact.
func (s *Store) Path(a Artifact) string {
	return filepath.Join(s.dir, a.Name())
}

// Scan lists the directory and derives its State. Part files, the lock file
// and anything else outside the naming convention are ignored.
func (s *Store) Scan() (State, error) {
	state, _, err := s.ScanAll()
	return state, err
}

// ScanAll is Scan that also returns the names of files that matched no
// artifact name.
func (s *Store) ScanAll() (State, []string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return State{}, nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}

	state := NewState()
	var foreign []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == lockName || file.IsPartName(name) {
			continue
		}
		a, err := Parse(name)
		if err != nil {
			log.Debug("Ignoring foreign file %s in %s", name, s.dir)
			foreign = append(foreign, name)
			continue
		}
		state.add(a)
	}
	return state, foreign, nil
}

// Clear removes every file from the directory except the lock.
func (s *Store) Clear() error {
	return file.EmptyDir(s.dir, lockName)
}
