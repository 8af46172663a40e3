// Package security validates user supplied file paths such as the YAML
// config file and file:// ICS feeds.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for empty paths and paths carrying shell
// metacharacters.
var ErrUnsafePath = errors.New("unsafe file path")

const forbidden = ";&|$`<>\n\r"

// ValidateFilePath returns the absolute, cleaned form of path with a leading
// ~/ expanded. Symlinks are resolved when the target exists; a missing file
// is not an error.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsafePath)
	}
	if i := strings.IndexAny(path, forbidden); i >= 0 {
		return "", fmt.Errorf("%w: forbidden character %q in %q", ErrUnsafePath, path[i], path)
	}

	clean, err := expandHome(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if clean, err = filepath.Abs(clean); err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(clean)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return clean, nil
	case err != nil:
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

func expandHome(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~"+string(filepath.Separator))
	if !ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home directory: %w", err)
	}
	return filepath.Join(home, rest), nil
}

// SafeReadFile reads path after ValidateFilePath accepts it.
func SafeReadFile(path string) ([]byte, error) {
	clean, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(clean) // #nosec G304 -- validated above
}
