package configread

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFileRepo struct {
	dir string
}

func (m memFileRepo) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(m.dir, path))
	return err == nil
}

func (m memFileRepo) UpdateTime(path string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(m.dir, path))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (m memFileRepo) Load(path string) (Tree, error) {
	contents, err := os.ReadFile(filepath.Join(m.dir, path))
	if err != nil {
		return nil, err
	}
	return ParseYAML(contents)
}

func (m memFileRepo) AllPaths() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, e.Name())
		}
	}
	return paths, nil
}

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func defaultSettings() RepositorySettings {
	return RepositorySettings{ExternalConfigPrefix: "external_config", ExternalNameField: "external_name"}
}

func TestReaderDiscoversObjects(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d.yaml", "external_config:\n  external_name: D\n  value: 1\n")

	r := NewReader("dictionary", nil)
	r.AddRepository("R1", memFileRepo{dir: dir}, defaultSettings())
	snap := r.Read()

	cfg, ok := snap.Get("D")
	require.True(t, ok)
	assert.Equal(t, "R1", cfg.RepositoryName)
	assert.Equal(t, "d.yaml", cfg.Path)
}

func TestReaderSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d.yaml", "external_config:\n  external_name: D\n")

	r := NewReader("dictionary", nil)
	r.AddRepository("R1", memFileRepo{dir: dir}, defaultSettings())
	first := r.Read()
	second := r.Read()
	assert.Same(t, first, second)
}

func TestReaderDetectsChangeAndReturnsNewSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d.yaml", "external_config:\n  external_name: D\n  value: 1\n")

	r := NewReader("dictionary", nil)
	r.AddRepository("R1", memFileRepo{dir: dir}, defaultSettings())
	first := r.Read()

	time.Sleep(10 * time.Millisecond)
	writeFile(t, dir, "d.yaml", "external_config:\n  external_name: D\n  value: 2\n")
	second := r.Read()

	assert.NotSame(t, first, second)
	newCfg, ok := second.Get("D")
	require.True(t, ok)
	oldCfg, ok := first.Get("D")
	require.True(t, ok)
	assert.False(t, newCfg.SameAs(oldCfg))
}

func TestReaderCollisionFirstRepositoryWins(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeFile(t, dir1, "d.yaml", "external_config:\n  external_name: D\n")
	writeFile(t, dir2, "d2.yaml", "external_config:\n  external_name: D\n")

	r := NewReader("dictionary", nil)
	r.AddRepository("R1", memFileRepo{dir: dir1}, defaultSettings())
	r.AddRepository("R2", memFileRepo{dir: dir2}, defaultSettings())
	snap := r.Read()

	cfg, ok := snap.Get("D")
	require.True(t, ok)
	assert.Equal(t, "R1", cfg.RepositoryName)
}

func TestReaderRemovedFileIsGarbageCollected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d.yaml", "external_config:\n  external_name: D\n")

	r := NewReader("dictionary", nil)
	r.AddRepository("R1", memFileRepo{dir: dir}, defaultSettings())
	snap := r.Read()
	_, ok := snap.Get("D")
	require.True(t, ok)

	require.NoError(t, os.Remove(filepath.Join(dir, "d.yaml")))
	snap = r.Read()
	_, ok = snap.Get("D")
	assert.False(t, ok)
}
