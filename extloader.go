// Package extloader is a generic external-object loader: a concurrent
// registry that discovers declarative object configurations from
// pluggable repositories, materializes them into live in-memory objects,
// keeps them in sync with their configuration sources, and periodically
// refreshes them according to per-object lifetimes.
package extloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
	"github.com/dispatchkit/extloader/internal/dispatch"
	"github.com/dispatchkit/extloader/internal/update"
)

// Re-exported core vocabulary, so callers never need to import an
// internal package.
type (
	Status             = dispatch.Status
	LoadResult         = dispatch.LoadResult
	LoadResults        = dispatch.LoadResults
	Loadable           = dispatch.Loadable
	Lifetime           = dispatch.Lifetime
	CreateObjectFunc   = dispatch.CreateObjectFunc
	FilterFunc         = dispatch.FilterFunc
	ObjectConfig       = configread.ObjectConfig
	RepositorySettings = configread.RepositorySettings
	Repository         = configread.Repository
)

// Status values, mirroring the seven-state table.
const (
	NotLoaded          = dispatch.NotLoaded
	Loaded             = dispatch.Loaded
	Failed             = dispatch.Failed
	Loading            = dispatch.Loading
	LoadedAndReloading = dispatch.LoadedAndReloading
	FailedAndReloading = dispatch.FailedAndReloading
	NotExist           = dispatch.NotExist
)

// WAIT is the sentinel timeout meaning "block indefinitely".
const WAIT = dispatch.WAIT

// InternalRepositoryPrefix marks a repository whose name collisions are
// resolved silently instead of logged.
const InternalRepositoryPrefix = configread.InternalRepositoryPrefix

// AllStatuses enumerates every possible Status, for introspection.
func AllStatuses() []Status { return dispatch.AllStatuses() }

// Options configures a Loader at construction.
type Options struct {
	// TypeName labels diagnostics and the CloudEvents source attribute,
	// e.g. "dictionary" or "model".
	TypeName string

	// Settings names the config-subtree prefix and name field every
	// registered repository's files use to declare objects.
	Settings RepositorySettings

	// CreateObject materializes a live object from parsed config. Required.
	CreateObject CreateObjectFunc

	// Logger receives structured diagnostics. Defaults to a no-op.
	Logger Logger

	// Bus receives CloudEvents notifications on every load transition,
	// repository reconciliation, and removal. A nil Bus disables eventing.
	// Construct one with NewBus.
	Bus *Bus

	// Seed fixes the dispatcher's PRNG for deterministic tests. Zero uses
	// the current time.
	Seed int64

	// CronSchedule, given as a standard five-field cron expression,
	// overrides the Periodic Updater's fixed check period.
	CronSchedule string

	// BackoffBase and BackoffMax configure the randomized exponential
	// retry policy calculateNextUpdateTime falls back to after a failed
	// load. Zero values use the reference implementation's 5s/10min
	// defaults.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Loader wires together the Config Reader, Loading Dispatcher, and
// Periodic Updater described by the core design.
type Loader struct {
	reader     *configread.Reader
	dispatcher *dispatch.Dispatcher
	updater    *update.PeriodicUpdater
	settings   RepositorySettings
}

// New builds a Loader. The Periodic Updater is constructed but not
// started; call EnablePeriodicUpdates(true) to start it.
func New(opts Options) (*Loader, error) {
	if opts.CreateObject == nil {
		return nil, errors.New("extloader: Options.CreateObject is required")
	}
	if opts.Settings.ExternalConfigPrefix == "" || opts.Settings.ExternalNameField == "" {
		return nil, errors.New("extloader: Options.Settings requires both ExternalConfigPrefix and ExternalNameField")
	}

	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	reader := configread.NewReader(opts.TypeName, log)

	source := "extloader"
	if opts.TypeName != "" {
		source = "extloader/" + opts.TypeName
	}
	dispatcher := dispatch.NewDispatcher(opts.TypeName, source, opts.CreateObject, log, opts.Bus, seed, opts.BackoffBase, opts.BackoffMax)

	var schedule update.Schedule
	if opts.CronSchedule != "" {
		s, err := update.NewCronSchedule(opts.CronSchedule)
		if err != nil {
			return nil, fmt.Errorf("extloader: invalid cron schedule: %w", err)
		}
		schedule = s
	}
	updater := update.NewPeriodicUpdater(reader, dispatcher, log, schedule)

	return &Loader{reader: reader, dispatcher: dispatcher, updater: updater, settings: opts.Settings}, nil
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// AddRepository registers repo under name using the Loader's configured
// Settings, and immediately triggers a rescan.
func (l *Loader) AddRepository(name string, repo Repository) {
	l.reader.AddRepository(name, repo, l.currentSettings())
	l.ReloadConfig()
}

func (l *Loader) currentSettings() RepositorySettings {
	// Settings are fixed at construction, stored on the Loader, and
	// threaded through every AddRepository call unchanged.
	return l.settings
}

// RemoveRepository unregisters name and returns its Repository handle, if
// any, then triggers a rescan.
func (l *Loader) RemoveRepository(name string) Repository {
	repo := l.reader.RemoveRepository(name)
	l.ReloadConfig()
	return repo
}

// EnableAlwaysLoadEverything toggles whether every newly-known object
// begins loading immediately instead of waiting for a caller to ask.
func (l *Loader) EnableAlwaysLoadEverything(enable bool) {
	l.dispatcher.EnableAlwaysLoadEverything(enable)
}

// EnableAsyncLoading toggles whether loads run on a dedicated goroutine
// (true) or the calling goroutine (false).
func (l *Loader) EnableAsyncLoading(enable bool) {
	l.dispatcher.EnableAsyncLoading(enable)
}

// EnablePeriodicUpdates starts or stops the background updater. Both
// directions are idempotent.
func (l *Loader) EnablePeriodicUpdates(enable bool) {
	l.updater.Enable(enable)
}

// GetCurrentStatus returns name's current Status, or NotExist if unknown.
func (l *Loader) GetCurrentStatus(name string) Status {
	return l.dispatcher.GetCurrentStatus(name)
}

// GetCurrentLoadResult returns the current LoadResult for name.
func (l *Loader) GetCurrentLoadResult(name string) (LoadResult, bool) {
	return l.dispatcher.GetCurrentLoadResult(name)
}

// GetCurrentLoadResults returns the LoadResult for every name matching
// filter. A nil filter matches every known name.
func (l *Loader) GetCurrentLoadResults(filter FilterFunc) LoadResults {
	return l.dispatcher.GetCurrentLoadResults(filter)
}

// GetNumberOfCurrentlyLoadedObjects counts objects in LOADED or
// LOADED_AND_RELOADING.
func (l *Loader) GetNumberOfCurrentlyLoadedObjects() int {
	return l.dispatcher.GetNumberOfCurrentlyLoadedObjects()
}

// HasCurrentlyLoadedObjects reports whether any object is currently
// loaded.
func (l *Loader) HasCurrentlyLoadedObjects() bool {
	return l.dispatcher.HasCurrentlyLoadedObjects()
}

// GetAllTriedToLoadNames returns every name for which at least one load
// has been attempted.
func (l *Loader) GetAllTriedToLoadNames() []string {
	return l.dispatcher.GetAllTriedToLoadNames()
}

// TryLoad blocks until name is ready (loaded or failed), up to timeout
// (WAIT blocks indefinitely), triggering a load if none is in flight.
func (l *Loader) TryLoad(name string, timeout time.Duration) (LoadResult, bool) {
	return l.dispatcher.TryLoad(name, timeout)
}

// TryLoadFilter is the filter-based form of TryLoad.
func (l *Loader) TryLoadFilter(filter FilterFunc, timeout time.Duration) LoadResults {
	return l.dispatcher.TryLoadFilter(filter, timeout)
}

// TryLoadOrReload cancels any in-flight load on name, forces a fresh load
// even if already loaded, then waits like TryLoad.
func (l *Loader) TryLoadOrReload(name string, timeout time.Duration) (LoadResult, bool) {
	return l.dispatcher.TryLoadOrReload(name, timeout)
}

// TryLoadOrReloadFilter is the filter-based form of TryLoadOrReload.
func (l *Loader) TryLoadOrReloadFilter(filter FilterFunc, timeout time.Duration) LoadResults {
	return l.dispatcher.TryLoadOrReloadFilter(filter, timeout)
}

// ReloadConfig rescans every registered repository and applies the
// resulting snapshot to the dispatcher.
func (l *Loader) ReloadConfig() {
	l.dispatcher.SetConfiguration(l.reader.Read())
}

// ReloadConfigRepository rescans only repoName, then applies the full
// current snapshot across all repositories.
func (l *Loader) ReloadConfigRepository(repoName string) {
	l.dispatcher.SetConfiguration(l.reader.ReadRepository(repoName))
}

// ReloadConfigPath rescans only path within repoName, then applies the
// full current snapshot across all repositories.
func (l *Loader) ReloadConfigPath(repoName, path string) {
	l.dispatcher.SetConfiguration(l.reader.ReadPath(repoName, path))
}

// ReloadOutdated sweeps every loaded object past its next-update deadline
// and refreshes those that need it.
func (l *Loader) ReloadOutdated() {
	l.dispatcher.ReloadOutdated()
}

// Load is a convenience wrapper returning only the live object (nil if
// not loaded or unknown).
func (l *Loader) Load(name string, timeout time.Duration) Loadable {
	result, ok := l.TryLoad(name, timeout)
	if !ok {
		return nil
	}
	return result.Object
}

// LoadOrReload is the forced-reload counterpart of Load.
func (l *Loader) LoadOrReload(name string, timeout time.Duration) Loadable {
	result, ok := l.TryLoadOrReload(name, timeout)
	if !ok {
		return nil
	}
	return result.Object
}

// ReloadAllTriedToLoad forces a reload of every name that has ever been
// loaded or attempted, waiting up to timeout for all of them to settle.
func (l *Loader) ReloadAllTriedToLoad(timeout time.Duration) LoadResults {
	names := l.GetAllTriedToLoadNames()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return l.TryLoadOrReloadFilter(func(name string) bool { return set[name] }, timeout)
}

// CheckLoaded validates that result represents a completed load attempt,
// returning its object. If checkNoErrors is true and result carries an
// exception, that exception is returned as the error instead.
func CheckLoaded(result LoadResult, checkNoErrors bool) (Loadable, error) {
	switch result.Status {
	case Loading, LoadedAndReloading, FailedAndReloading:
		return nil, fmt.Errorf("%w: %q", ErrStillLoading, result.Name)
	case NotExist:
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, result.Name)
	case NotLoaded:
		return nil, fmt.Errorf("%w: %q", ErrNeverAttempted, result.Name)
	}
	if checkNoErrors && result.Err != nil {
		return result.Object, asLogicError(result.Name, result.Err)
	}
	return result.Object, nil
}

// CheckLoadedBatch validates every result in results, returning every
// valid object and the first misuse/load error observed; later errors are
// logged by the caller-supplied logger instead of being aggregated.
func CheckLoadedBatch(results LoadResults, checkNoErrors bool, log Logger) ([]Loadable, error) {
	if log == nil {
		log = noopLogger{}
	}
	var firstErr error
	objects := make([]Loadable, 0, len(results))
	for _, r := range results {
		obj, err := CheckLoaded(r, checkNoErrors)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				log.Error("load error", "name", r.Name, "error", err)
			}
			continue
		}
		if obj != nil {
			objects = append(objects, obj)
		}
	}
	return objects, firstErr
}

// Close stops the background updater and waits for any in-flight async
// loads to finish.
func (l *Loader) Close() {
	l.updater.Close()
	l.dispatcher.Close()
}
