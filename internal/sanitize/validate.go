package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal indicates a path escapes its allowed root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// ValidatePath cleans path and returns its absolute form.
//
// If allowedRoot is non-empty the result must resolve inside it. Symlinks
// are not followed.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if allowedRoot == "" {
		return absPath, nil
	}

	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
	}
	return absPath, nil
}
