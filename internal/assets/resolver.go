// Package assets maps indexed design identifiers to local drawing files and
// encodes images for transport to vision models and HTTP clients.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/sanitize"
)

// imageSeparator splits a design ID into its filing prefix and drawing number,
// e.g. "3020250000208-09-01-0-IMG-0".
const imageSeparator = "-IMG-"

// Resolver finds the local image file of a design.
type Resolver struct {
	dir    string
	logger *zap.Logger
}

// NewResolver creates a Resolver rooted at imagesDir.
func NewResolver(imagesDir string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: imagesDir, logger: logger}
}

// Dir returns the images directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve returns the path of the drawing for designID and whether it exists.
//
// "{prefix}-IMG-{n}" maps to "{prefix}_{n padded to 3 digits}.jpg".
func (r *Resolver) Resolve(designID string) (string, bool) {
	name, ok := FileName(designID)
	if !ok {
		return "", false
	}

	path, err := sanitize.ValidatePath(filepath.Join(r.dir, name), r.dir)
	if err != nil {
		r.logger.Warn("design image outside images dir",
			zap.String("design_id", designID),
			zap.Error(err),
		)
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to stat design image",
				zap.String("design_id", designID),
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return "", false
	}
	return path, true
}

// FileName builds the drawing file name for designID.
// It reports false unless the ID contains the separator exactly once.
func FileName(designID string) (string, bool) {
	parts := strings.Split(designID, imageSeparator)
	if len(parts) != 2 {
		return "", false
	}
	return fmt.Sprintf("%s_%s.jpg", parts[0], zfill(parts[1], 3)), true
}

// zfill left-pads s with zeros to width, keeping a leading sign in front.
func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := strings.Repeat("0", width-len(s))
	if s != "" && (s[0] == '-' || s[0] == '+') {
		return s[:1] + pad + s[1:]
	}
	return pad + s
}
