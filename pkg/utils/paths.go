// Package utils holds small filesystem helpers shared across the engine
// packages, kept from the teacher's pkg/utils unchanged in behavior.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// SafeJoin joins and cleans a path, collapsing ".." and redundant separators.
func SafeJoin(base string, elements ...string) string {
	path := filepath.Join(append([]string{base}, elements...)...)
	return filepath.Clean(path)
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// PathExists reports whether path exists (file or directory).
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
