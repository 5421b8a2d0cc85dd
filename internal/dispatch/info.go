package dispatch

import (
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
)

// info is the dispatcher's authoritative per-object state. Every status,
// result, and scheduling decision is derived from it; nothing about an
// object's load state lives anywhere else. Guarded by the owning
// Dispatcher's mutex.
type info struct {
	name         string
	objectConfig configread.ObjectConfig
	object       Loadable
	exception    error

	loadingStartTime time.Time
	loadingEndTime   time.Time
	loadingID        uint64 // 0 means "no load in flight"
	errorCount       int
	nextUpdateTime   time.Time

	forcedToReload bool

	// configChanged marks that objectConfig was updated since object was
	// last produced, forcing the next load to pass a nil previous version
	// to the factory.
	configChanged bool
}

// loaded reports whether this object currently has a live value, matching
// the reference definition: loaded iff object != nullptr.
func (i *info) loaded() bool {
	return i.object != nil
}

// failed reports whether the object has no live value but does have a
// recorded exception from its most recent attempt.
func (i *info) failed() bool {
	return i.object == nil && i.exception != nil
}

// loading reports whether a load is currently in flight.
func (i *info) loading() bool {
	return i.loadingID != 0
}

// triedToLoad reports whether at least one load attempt has been made,
// completed or not.
func (i *info) triedToLoad() bool {
	return i.loaded() || i.failed() || i.loading()
}

// ready reports whether the object has settled into a terminal state
// (loaded or failed) and nobody has since forced another reload.
func (i *info) ready() bool {
	return (i.loaded() || i.failed()) && !i.forcedToReload
}

// failedToReload reports whether a previously loaded object's most recent
// reload attempt failed, leaving the prior value in place alongside a
// recorded exception. This is the one state where both object and
// exception are non-nil.
func (i *info) failedToReload() bool {
	return i.loaded() && i.exception != nil
}

// status derives the externally visible Status from the (loading, loaded,
// exception) triple, per the status table.
func (i *info) status() Status {
	switch {
	case i.loading() && i.loaded():
		return LoadedAndReloading
	case i.loading() && i.failed():
		return FailedAndReloading
	case i.loading():
		return Loading
	case i.failed():
		return Failed
	case i.loaded():
		return Loaded
	default:
		return NotLoaded
	}
}

// result snapshots this info into a LoadResult for external consumption.
func (i *info) result() LoadResult {
	return LoadResult{
		Name:             i.name,
		Status:           i.status(),
		Object:           i.object,
		Err:              i.exception,
		LoadingStartTime: i.loadingStartTime,
		LoadingDuration:  i.loadingEndTime.Sub(i.loadingStartTime),
		Origin:           i.objectConfig.Path,
		RepositoryName:   i.objectConfig.RepositoryName,
	}
}
