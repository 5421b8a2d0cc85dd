package configread

import (
	"reflect"
	"time"
)

// ObjectConfig identifies where a single named object's configuration came
// from: Tree is the parsed document it was declared in and KeyInConfig the
// key of the subtree that describes it. It is immutable and
// opaque to the loader beyond RepositoryName/Path, which exist purely for
// collision diagnostics and surfacing the object's origin to callers.
type ObjectConfig struct {
	Tree           Tree
	KeyInConfig    string
	RepositoryName string
	Path           string
}

// SameAs reports whether two ObjectConfigs describe the same configuration
// (same subtree contents and same key within it), ignoring origin
// (RepositoryName/Path). Used by the dispatcher to detect whether a
// rescanned object actually changed.
func (c ObjectConfig) SameAs(other ObjectConfig) bool {
	if c.KeyInConfig != other.KeyInConfig {
		return false
	}
	if c.Tree == nil || other.Tree == nil {
		return c.Tree == other.Tree
	}
	a, aok := c.Tree.Get(c.KeyInConfig)
	b, bok := other.Tree.Get(other.KeyInConfig)
	if !aok || !bok {
		return c.Tree.Equal(other.Tree)
	}
	return reflect.DeepEqual(a, b)
}

// RepositorySettings names the config-subtree prefix and name field a
// Repository's files use to declare objects, e.g. prefix "external_config"
// with name field "external_name" turns
//
//	external_config:
//	  external_name: my_object
//
// into an object named "my_object".
type RepositorySettings struct {
	ExternalConfigPrefix string
	ExternalNameField    string
}

// InternalRepositoryPrefix marks a repository as internal: collisions
// where either side of the collision is an internal repository are
// resolved silently (first-registered wins) instead of logging a warning.
const InternalRepositoryPrefix = "internal-"

// Repository is the pluggable source of config files a Reader scans. It is
// the loader's only contract with wherever configuration actually lives
// (disk, database, ZooKeeper, ...); the Reader never assumes anything else
// about it.
type Repository interface {
	// Exists reports whether path currently exists in this repository.
	Exists(path string) bool

	// UpdateTime returns the last-modified time of path.
	UpdateTime(path string) (time.Time, error)

	// Load reads and parses path into a Tree.
	Load(path string) (Tree, error)

	// AllPaths lists every path this repository currently defines objects
	// under.
	AllPaths() ([]string, error)
}

// fileInfo tracks one scanned file's last known state. inUse is a scratch
// flag: cleared at the start of every rescan, set for every path still
// reported by the repository; anything left false after a scan pass has
// been deleted and its fileInfo is garbage-collected.
type fileInfo struct {
	lastUpdateTime time.Time
	objects        []namedObjectConfig
	inUse          bool
}

type namedObjectConfig struct {
	name   string
	config ObjectConfig
}

// repositoryInfo is one registered repository plus everything the reader
// has scanned from it so far.
type repositoryInfo struct {
	repository Repository
	settings   RepositorySettings
	files      map[string]*fileInfo
}

// Snapshot is an immutable object_name -> ObjectConfig mapping published
// atomically by a Reader. Snapshots are compared by pointer identity
// (Reader.Read returns the exact same *Snapshot when nothing changed) so
// downstream reconciliation can skip expensive diffing, matching the
// spec's "configs == new_configs" fast path.
type Snapshot struct {
	byName map[string]ObjectConfig
}

// NewSnapshot wraps a name->config map as an immutable Snapshot. Callers
// must not mutate m after calling this.
func NewSnapshot(m map[string]ObjectConfig) *Snapshot {
	return &Snapshot{byName: m}
}

// Get returns the ObjectConfig registered for name, if any.
func (s *Snapshot) Get(name string) (ObjectConfig, bool) {
	if s == nil {
		return ObjectConfig{}, false
	}
	c, ok := s.byName[name]
	return c, ok
}

// Names returns every object name in the snapshot, unordered.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	return names
}

// Len reports how many objects the snapshot defines.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byName)
}
