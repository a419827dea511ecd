package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath checks that a path is a well-formed project-relative POSIX
// path: forward slashes, not absolute, no "." or ".." components, no
// backslashes, no NUL bytes. Persisted and wire-serialized paths are all
// of this form; conversion to the native form happens only at disk I/O.
func ValidatePath(pth string) error {
	if pth == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(pth, '\x00') {
		return fmt.Errorf("path contains NUL: %q", pth)
	}
	if strings.ContainsRune(pth, '\\') {
		return fmt.Errorf("path is not POSIX-form: %q", pth)
	}
	if strings.HasPrefix(pth, "/") {
		return fmt.Errorf("path is absolute: %q", pth)
	}
	for _, component := range strings.Split(pth, "/") {
		switch component {
		case "":
			return fmt.Errorf("path has empty component: %q", pth)
		case ".", "..":
			return fmt.Errorf("path has relative component: %q", pth)
		}
	}
	return nil
}

// ToPOSIX converts a native relative path to its POSIX form
func ToPOSIX(native string) string {
	return filepath.ToSlash(native)
}

// FromPOSIX converts a POSIX project-relative path to the native form
// for disk I/O
func FromPOSIX(pth string) string {
	return filepath.FromSlash(pth)
}
