// Package configread implements the Config Reader component: it owns a
// registered set of named repositories, rescans them on demand, and
// publishes an immutable name->ObjectConfig Snapshot across all of them.
package configread

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger is the minimal logging surface configread needs; satisfied by
// the root package's Logger interface without importing it (avoids an
// import cycle between the facade and its internals).
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reader reads configurations from every registered repository and
// reconciles them into a single Snapshot, exactly as specified for the
// Config Reader component.
type Reader struct {
	typeName string
	log      Logger

	mu                 sync.Mutex
	repositories       map[string]*repositoryInfo
	order              []string // registration order, for deterministic collision resolution
	snapshot           *Snapshot
	needCollectObjects bool
}

// NewReader creates a Reader. typeName only affects diagnostic messages
// (e.g. "dictionary 'D' is found both in file ..."), matching the
// reference implementation's use of a caller-supplied type name.
func NewReader(typeName string, log Logger) *Reader {
	if log == nil {
		log = noopLogger{}
	}
	return &Reader{
		typeName:     typeName,
		log:          log,
		repositories: make(map[string]*repositoryInfo),
	}
}

// AddRepository registers a new repository under name. Marks the cached
// snapshot stale so the next Read rebuilds it.
func (r *Reader) AddRepository(name string, repo Repository, settings RepositorySettings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repositories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.repositories[name] = &repositoryInfo{
		repository: repo,
		settings:   settings,
		files:      make(map[string]*fileInfo),
	}
	r.needCollectObjects = true
}

// RemoveRepository unregisters name and returns the repository handle that
// was registered under it, if any.
func (r *Reader) RemoveRepository(name string) Repository {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.repositories[name]
	if !ok {
		return nil
	}
	delete(r.repositories, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.needCollectObjects = true
	return info.repository
}

// Read rescans every registered repository and returns the full current
// snapshot across all of them.
func (r *Reader) Read() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rescan(nil, nil)
	r.collectObjectConfigs()
	return r.snapshot
}

// ReadRepository rescans only repoName but still returns the full
// snapshot across all repositories.
func (r *Reader) ReadRepository(repoName string) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rescan(&repoName, nil)
	r.collectObjectConfigs()
	return r.snapshot
}

// ReadPath rescans only the given path within repoName but still returns
// the full snapshot across all repositories.
func (r *Reader) ReadPath(repoName, path string) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rescan(&repoName, &path)
	r.collectObjectConfigs()
	return r.snapshot
}

// rescan implements §4.1's rescan algorithm. Caller holds r.mu.
func (r *Reader) rescan(onlyRepo, onlyPath *string) {
	var names []string
	if onlyRepo != nil {
		if _, ok := r.repositories[*onlyRepo]; ok {
			names = []string{*onlyRepo}
		}
	} else {
		names = append(names, r.order...)
	}

	for _, name := range names {
		info := r.repositories[name]

		for _, fi := range info.files {
			fi.inUse = false
		}

		var existingPaths []string
		if onlyPath != nil {
			if info.repository.Exists(*onlyPath) {
				existingPaths = []string{*onlyPath}
			}
		} else {
			paths, err := info.repository.AllPaths()
			if err != nil {
				r.log.Error("failed to list paths", "repository", name, "error", err)
			} else {
				existingPaths = paths
			}
		}

		for _, path := range existingPaths {
			fi, existed := info.files[path]
			if !existed {
				fi = &fileInfo{}
			}
			if r.readFileInfo(fi, info.repository, path, info.settings) {
				r.needCollectObjects = true
			}
			if !existed {
				info.files[path] = fi
			}
		}

		var deleted []string
		for path, fi := range info.files {
			if fi.inUse {
				continue
			}
			if onlyPath != nil && *onlyPath != path {
				continue
			}
			deleted = append(deleted, path)
		}
		if len(deleted) > 0 {
			for _, path := range deleted {
				delete(info.files, path)
			}
			r.needCollectObjects = true
		}
	}
}

// readFileInfo reloads a single file if it is new or changed, mutating fi
// in place, and returns whether it actually changed.
func (r *Reader) readFileInfo(fi *fileInfo, repo Repository, path string, settings RepositorySettings) (changed bool) {
	if path == "" || !repo.Exists(path) {
		r.log.Warn("config path does not exist", "path", path)
		return false
	}

	updateTime, err := repo.UpdateTime(path)
	if err != nil {
		r.log.Error("failed to stat config path", "path", path, "error", err)
		fi.inUse = true // keep the last good contents
		return false
	}

	if !updateTime.After(fi.lastUpdateTime) {
		fi.inUse = true
		return false
	}

	tree, err := repo.Load(path)
	if err != nil {
		r.log.Error("failed to load config path", "path", path, "error", err)
		fi.inUse = true // keep the last good contents
		return false
	}

	var objects []namedObjectConfig
	for _, key := range tree.Keys() {
		if !strings.HasPrefix(key, settings.ExternalConfigPrefix) {
			if !strings.HasPrefix(key, "comment") && !strings.HasPrefix(key, "include_from") {
				r.log.Warn(fmt.Sprintf("%s: file contains unknown node %q, expected prefix %q", path, key, settings.ExternalConfigPrefix))
			}
			continue
		}

		name := tree.GetString(key + "." + settings.ExternalNameField)
		if name == "" {
			r.log.Warn(fmt.Sprintf("%s: node %q defines a %s with an empty name, skipping", path, key, r.typeName))
			continue
		}

		objects = append(objects, namedObjectConfig{
			name: name,
			config: ObjectConfig{
				Tree:        tree,
				KeyInConfig: key,
			},
		})
	}

	fi.objects = objects
	fi.lastUpdateTime = updateTime
	fi.inUse = true
	return true
}

// collectObjectConfigs rebuilds r.snapshot from every repository's scanned
// files, first-registered-wins on name collisions. Caller holds r.mu.
func (r *Reader) collectObjectConfigs() {
	if !r.needCollectObjects {
		return
	}
	r.needCollectObjects = false

	byName := make(map[string]ObjectConfig)

	for _, repoName := range r.order {
		info := r.repositories[repoName]

		var paths []string
		for path := range info.files {
			paths = append(paths, path)
		}
		// Deterministic order for reproducible collision-warning tests.
		sort.Strings(paths)

		for _, path := range paths {
			fi := info.files[path]
			for _, obj := range fi.objects {
				existing, already := byName[obj.name]
				if !already {
					cfg := obj.config
					cfg.RepositoryName = repoName
					cfg.Path = path
					byName[obj.name] = cfg
					continue
				}

				internalCollision := strings.HasPrefix(repoName, InternalRepositoryPrefix) ||
					strings.HasPrefix(existing.RepositoryName, InternalRepositoryPrefix)
				if !internalCollision {
					if existing.Path == path && existing.RepositoryName == repoName {
						r.log.Warn(fmt.Sprintf("%s %q is found twice in the same file %q", r.typeName, obj.name, path))
					} else {
						r.log.Warn(fmt.Sprintf("%s %q is found both in file %q and %q", r.typeName, obj.name, existing.Path, path))
					}
				}
			}
		}
	}

	r.snapshot = NewSnapshot(byName)
}
