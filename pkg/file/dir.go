package file

import (
	"fmt"
	"os"
	"path/filepath"
)

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// EmptyDir removes every entry inside dir but keeps dir itself.
// Names listed in keep are left untouched.
func EmptyDir(dir string, keep ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}
	skip := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		skip[k] = struct{}{}
	}
	for _, entry := range entries {
		if _, ok := skip[entry.Name()]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Commit moves a finished part file onto its final name.
func Commit(partPath, finalPath string) error {
	if err := os.Rename(partPath, finalPath); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("commit %s: %w", filepath.Base(finalPath), err)
	}
	return nil
}

// Discard removes a part file left behind by a failed producer.
func Discard(partPath string) {
	_ = os.Remove(partPath)
}
