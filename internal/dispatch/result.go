package dispatch

import (
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
)

// LoadResult is the full picture of one object's current load state,
// returned by the name- and filter-based query/load APIs.
type LoadResult struct {
	Name             string
	Status           Status
	Object           Loadable
	Err              error
	LoadingStartTime time.Time
	LoadingDuration  time.Duration
	Origin           string // object_config.path
	RepositoryName   string
}

// LoadResults is an ordered batch of LoadResult, one per matched name.
type LoadResults []LoadResult

// CreateObjectFunc materializes a live object from config, consulted by
// the dispatcher for every (re)load. If previous is non-nil, the factory
// may return previous.Clone() to signal "configuration unchanged, cheap
// refresh"; the dispatcher always passes a nil previous whenever the
// object has never loaded, its config changed, or a reload was forced.
type CreateObjectFunc func(name string, config configread.ObjectConfig, previous Loadable) (Loadable, error)

// FilterFunc selects object names for the filter-based APIs.
type FilterFunc func(name string) bool
