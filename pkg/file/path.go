package file

import (
	"path/filepath"
	"strings"
)

const partSuffix = ".part"

// PartPath returns the hidden in-progress sibling of path. A producer writes
// there and renames onto path once the content is complete.
func PartPath(path string) string {
	if path == "" {
		return path
	}
	dir := filepath.Dir(path)
	return filepath.Join(dir, "."+filepath.Base(path)+partSuffix)
}

// IsPartName reports whether name is an in-progress file created via PartPath.
func IsPartName(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, partSuffix)
}
