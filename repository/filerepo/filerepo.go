// Package filerepo implements configread.Repository against a directory
// tree on the local filesystem: YAML and TOML files are the two supported
// formats, selected by extension.
package filerepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
)

// Repository reads object configuration from YAML/TOML files under root.
type Repository struct {
	root string
}

// New returns a Repository rooted at dir. dir must exist; it is not
// created.
func New(dir string) *Repository {
	return &Repository{root: filepath.Clean(dir)}
}

func (r *Repository) abs(path string) string {
	return filepath.Join(r.root, path)
}

// Exists reports whether path exists under root and is a regular file.
func (r *Repository) Exists(path string) bool {
	info, err := os.Stat(r.abs(path))
	return err == nil && !info.IsDir()
}

// UpdateTime returns path's modification time.
func (r *Repository) UpdateTime(path string) (time.Time, error) {
	info, err := os.Stat(r.abs(path))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Load reads and parses path, dispatching on its extension.
func (r *Repository) Load(path string) (configread.Tree, error) {
	contents, err := os.ReadFile(r.abs(path))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return configread.ParseYAML(contents)
	case ".toml":
		return configread.ParseTOML(contents)
	default:
		return nil, fmt.Errorf("filerepo: unsupported config extension %q for %s", filepath.Ext(path), path)
	}
}

// AllPaths walks root and returns every YAML/TOML file, relative to root.
func (r *Repository) AllPaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(r.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml", ".toml":
		default:
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
