// Package ingest loads design records from a TOML manifest and indexes
// their drawings.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/designd/internal/assets"
)

// ErrInvalidManifest is returned for unreadable or inconsistent manifests.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest lists the designs to index.
//
//	images_dir = "images"
//
//	[[design]]
//	id = "3020180012345-IMG-1"
//	application_number = "3020180012345"
//	article_name = "의자"
//	admst_stat = "등록"
//	image = "3020180012345_001.jpg" # optional
type Manifest struct {
	ImagesDir string   `toml:"images_dir"`
	Designs   []Design `toml:"design"`

	// dir is the manifest's directory; relative paths resolve against it.
	dir string
}

// Design is one manifest entry.
type Design struct {
	ID                string `toml:"id"`
	ApplicationNumber string `toml:"application_number"`
	ArticleName       string `toml:"article_name"`
	AdmstStat         string `toml:"admst_stat"`
	Image             string `toml:"image"`
}

// LoadManifest decodes and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalidManifest, path, undecoded)
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Designs) == 0 {
		return errors.New("no designs")
	}
	seen := make(map[string]int, len(m.Designs))
	for i, d := range m.Designs {
		if d.ID == "" {
			return fmt.Errorf("design %d: id is required", i+1)
		}
		if prev, ok := seen[d.ID]; ok {
			return fmt.Errorf("design %d: duplicate id %q (first at %d)", i+1, d.ID, prev)
		}
		seen[d.ID] = i + 1
		if d.Image == "" {
			if _, ok := assets.FileName(d.ID); !ok {
				return fmt.Errorf("design %d: no image and id %q has no -IMG- suffix", i+1, d.ID)
			}
		}
	}
	return nil
}

// imagesDir returns the resolved image directory.
func (m *Manifest) imagesDir() string {
	dir := m.ImagesDir
	if dir == "" {
		return m.dir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(m.dir, dir)
}

// ImagePath returns the drawing file for d. An explicit image wins;
// otherwise the name is derived from the design id.
func (m *Manifest) ImagePath(d Design) string {
	name := d.Image
	if name == "" {
		name, _ = assets.FileName(d.ID)
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.imagesDir(), name)
}

// exists reports whether path is a regular file.
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
