// Package dispatch implements the Loading Dispatcher: a per-name load state
// machine with at-most-one-in-flight load per object, cooperative
// cancellation of superseded loads, and background refresh scheduling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
	"github.com/dispatchkit/extloader/internal/events"
)

// WAIT is the sentinel timeout meaning "block indefinitely" in TryLoad and
// TryLoadOrReload.
const WAIT time.Duration = -1

// Logger is the minimal logging surface dispatch needs, satisfied by the
// root package's Logger without importing it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ErrLogicError is wrapped into the error returned when a factory produces
// neither an object nor an error: a programmer bug in the factory, not a
// normal load failure.
var ErrLogicError = errors.New("dispatch: create function returned neither an object nor an error")

// Dispatcher is the state machine described in §4.2: it owns one Info per
// known object name and drives it through NOT_LOADED -> LOADING ->
// LOADED|FAILED (and back, on refresh), with at most one in-flight load per
// name at any instant.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	typeName string
	log      Logger
	bus      *events.Bus
	source   string // CloudEvents source attribute

	createObject CreateObjectFunc

	infos   map[string]*info
	configs *configread.Snapshot

	alwaysLoadEverything bool
	asyncLoading         atomic.Bool

	nextLoadingID uint64

	rnd     *rand.Rand
	backoff backoffPolicy

	wg sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. typeName only affects diagnostics.
// seed fixes the per-dispatcher PRNG so tests can reproduce jittered
// schedules deterministically, per the design note that the PRNG must
// never be a process-wide singleton. backoffBase/backoffMax configure the
// error-retry policy in calculateNextUpdateTime; zero values fall back to
// the reference's 5s/10min defaults.
func NewDispatcher(typeName, source string, create CreateObjectFunc, log Logger, bus *events.Bus, seed int64, backoffBase, backoffMax time.Duration) *Dispatcher {
	if log == nil {
		log = noopLogger{}
	}
	d := &Dispatcher{
		typeName:     typeName,
		source:       source,
		log:          log,
		bus:          bus,
		createObject: create,
		infos:        make(map[string]*info),
		rnd:          rand.New(rand.NewSource(seed)),
	}
	d.backoff = newBackoffPolicy(backoffBase, backoffMax, d.rnd)
	d.cond = sync.NewCond(&d.mu)
	return d
}

// EnableAlwaysLoadEverything toggles whether every newly-known object
// begins loading immediately instead of waiting for a caller to ask.
func (d *Dispatcher) EnableAlwaysLoadEverything(enable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alwaysLoadEverything = enable
}

// EnableAsyncLoading toggles whether startLoading hands work to a
// goroutine (true) or runs it on the caller's goroutine (false). Atomic so
// a load already dispatched under the old setting is not reinterpreted.
func (d *Dispatcher) EnableAsyncLoading(enable bool) {
	d.asyncLoading.Store(enable)
}

// SetConfiguration reconciles the Info map against snapshot, per §4.2's
// reconciliation algorithm. A no-op when snapshot is pointer-identical to
// the previously applied one.
func (d *Dispatcher) SetConfiguration(snapshot *configread.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if snapshot == d.configs {
		return
	}
	d.configs = snapshot

	var removed []string
	for name, inf := range d.infos {
		cfg, ok := snapshot.Get(name)
		if !ok {
			removed = append(removed, name)
			continue
		}
		if !inf.objectConfig.SameAs(cfg) {
			inf.configChanged = true
			inf.objectConfig = cfg
			if inf.triedToLoad() {
				d.cancelLoading(inf)
				d.startLoading(name, inf)
			}
		}
	}

	for _, name := range snapshot.Names() {
		if _, exists := d.infos[name]; exists {
			continue
		}
		cfg, _ := snapshot.Get(name)
		inf := &info{name: name, objectConfig: cfg}
		d.infos[name] = inf
		if d.alwaysLoadEverything {
			d.startLoading(name, inf)
		}
	}

	for _, name := range removed {
		delete(d.infos, name)
	}

	if d.bus != nil && len(removed) > 0 {
		for _, name := range removed {
			d.bus.NotifyObservers(context.Background(), events.New(events.TypeObjectRemoved, d.source, map[string]string{"name": name}))
		}
	}
	if d.bus != nil {
		d.bus.NotifyObservers(context.Background(), events.New(events.TypeConfigApplied, d.source, map[string]int{"objectCount": len(d.infos)}))
	}

	d.cond.Broadcast()
}

// startLoading assigns a fresh loading_id and begins the load. Caller must
// hold d.mu. No-op if inf is already loading.
func (d *Dispatcher) startLoading(name string, inf *info) {
	if inf.loading() {
		return
	}
	d.nextLoadingID++
	id := d.nextLoadingID
	inf.loadingID = id
	inf.loadingStartTime = time.Now()
	inf.loadingEndTime = time.Time{}

	if d.bus != nil {
		d.bus.NotifyObservers(context.Background(), events.New(events.TypeObjectLoading, d.source, map[string]any{"name": name, "loadingId": id}))
	}

	if d.asyncLoading.Load() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.mu.Lock()
			d.doLoading(name, id)
			d.mu.Unlock()
		}()
		return
	}
	d.doLoading(name, id)
}

// cancelLoading cooperatively supersedes any in-flight load on inf. Caller
// must hold d.mu.
func (d *Dispatcher) cancelLoading(inf *info) {
	if !inf.loading() {
		return
	}
	inf.loadingID = 0
	inf.loadingEndTime = time.Now()
}

// doLoading runs the pre-check, the factory call, and the post-process
// commit described in §4.2. Caller must hold d.mu on entry and on return;
// the mutex is released only around the factory call itself, whether this
// runs on the caller's own goroutine (sync) or a dedicated one (async) —
// Go's sync.Mutex has no owning-goroutine concept, so unlocking around a
// slow call is safe in both cases.
func (d *Dispatcher) doLoading(name string, loadingID uint64) {
	inf, ok := d.infos[name]
	if !ok || !inf.loading() || inf.loadingID != loadingID {
		return
	}

	var previous Loadable
	if !(inf.object == nil || inf.configChanged || inf.forcedToReload) {
		previous = inf.object
	}
	cfg := inf.objectConfig

	d.mu.Unlock()
	newObject, loadErr := d.callFactory(name, cfg, previous)
	d.mu.Lock()

	inf, ok = d.infos[name]
	if !ok {
		// Name vanished from the Info map entirely while we were loading.
		return
	}

	errorCount := inf.errorCount
	if loadErr != nil {
		errorCount++
	} else {
		errorCount = 0
	}

	scheduleObject := inf.object
	if newObject != nil {
		scheduleObject = newObject
	}
	nextUpdate := d.calculateNextUpdateTime(scheduleObject, errorCount)

	if inf.loadingID != loadingID {
		// Superseded by a cancellation and fresh startLoading while the
		// factory ran; drop this result silently.
		return
	}

	if newObject != nil {
		inf.object = newObject
		inf.configChanged = false
	}
	inf.exception = loadErr
	inf.errorCount = errorCount
	inf.loadingEndTime = time.Now()
	inf.loadingID = 0
	inf.forcedToReload = false
	inf.nextUpdateTime = nextUpdate

	if loadErr != nil {
		if inf.object != nil {
			d.log.Error("reload failed, leaving previous version in place", "name", name, "error", loadErr)
		} else {
			d.log.Error("load failed", "name", name, "error", loadErr)
		}
	}

	d.emitResult(name, inf, loadErr)
	d.cond.Broadcast()
}

func (d *Dispatcher) emitResult(name string, inf *info, loadErr error) {
	if d.bus == nil {
		return
	}
	eventType := events.TypeObjectLoaded
	payload := map[string]any{"name": name}
	if loadErr != nil && inf.object == nil {
		eventType = events.TypeObjectFailed
		payload["error"] = loadErr.Error()
	}
	d.bus.NotifyObservers(context.Background(), events.New(eventType, d.source, payload))
}

// callFactory invokes the create function and enforces the invariant that
// it must produce at least one of (object, error). A panicking factory is
// recovered at this boundary and converted into the load's exception,
// Go's equivalent of the reference implementation's blanket catch (...)
// around the loading call.
func (d *Dispatcher) callFactory(name string, cfg configread.ObjectConfig, previous Loadable) (obj Loadable, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj = nil
			err = fmt.Errorf("dispatch: create function panicked for %q: %v", name, r)
		}
	}()
	obj, err = d.createObject(name, cfg, previous)
	if obj == nil && err == nil {
		return nil, fmt.Errorf("%w: %q", ErrLogicError, name)
	}
	return obj, err
}

// calculateNextUpdateTime implements §4.2's scheduling rule. Caller must
// hold d.mu (it consults the per-dispatcher PRNG).
func (d *Dispatcher) calculateNextUpdateTime(object Loadable, errorCount int) time.Time {
	now := time.Now()
	if object != nil {
		if !object.SupportUpdates() {
			return time.Time{}
		}
		lt := object.GetLifetime()
		if lt.MinSec == 0 && lt.MaxSec == 0 {
			return time.Time{}
		}
		if errorCount == 0 {
			span := int64(lt.MaxSec - lt.MinSec)
			var offset int64
			if span > 0 {
				offset = d.rnd.Int63n(span + 1)
			}
			return now.Add(time.Duration(lt.MinSec)*time.Second + time.Duration(offset)*time.Second)
		}
	}
	return now.Add(d.backoff.next(errorCount))
}

// GetCurrentStatus returns the Status for name, or NotExist if unknown.
func (d *Dispatcher) GetCurrentStatus(name string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	inf, ok := d.infos[name]
	if !ok {
		return NotExist
	}
	return inf.status()
}

// GetCurrentLoadResult returns the current LoadResult for name.
// ok is false if the name is unknown (Status will read NotExist).
func (d *Dispatcher) GetCurrentLoadResult(name string) (LoadResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inf, ok := d.infos[name]
	if !ok {
		return LoadResult{Name: name, Status: NotExist}, false
	}
	return inf.result(), true
}

// GetCurrentLoadResults returns the LoadResult for every name matching
// filter, in deterministic name order.
func (d *Dispatcher) GetCurrentLoadResults(filter FilterFunc) LoadResults {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := d.matchingNamesLocked(filter)
	sort.Strings(names)
	results := make(LoadResults, 0, len(names))
	for _, name := range names {
		results = append(results, d.infos[name].result())
	}
	return results
}

// GetNumberOfCurrentlyLoadedObjects counts Infos in LOADED or
// LOADED_AND_RELOADING.
func (d *Dispatcher) GetNumberOfCurrentlyLoadedObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, inf := range d.infos {
		if inf.loaded() {
			n++
		}
	}
	return n
}

// HasCurrentlyLoadedObjects reports whether any Info is currently loaded.
func (d *Dispatcher) HasCurrentlyLoadedObjects() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inf := range d.infos {
		if inf.loaded() {
			return true
		}
	}
	return false
}

// GetAllTriedToLoadNames returns every name for which at least one load
// has been attempted. Unlike the reference implementation, this always
// locks the mutex: per the design note, the reference's unlocked read is a
// latent bug, not an intentional semantic, and Go's race detector would
// flag an unlocked map iteration concurrent with writers as a real data
// race rather than a benign torn read.
func (d *Dispatcher) GetAllTriedToLoadNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name, inf := range d.infos {
		if inf.triedToLoad() {
			names = append(names, name)
		}
	}
	return names
}

func (d *Dispatcher) matchingNamesLocked(filter FilterFunc) []string {
	var names []string
	for name := range d.infos {
		if filter == nil || filter(name) {
			names = append(names, name)
		}
	}
	return names
}

// TryLoad blocks until name's Info is ready (loaded or failed), up to
// timeout (WAIT blocks indefinitely), triggering a load if one hasn't
// started. Returns ok=false if name is unknown.
func (d *Dispatcher) TryLoad(name string, timeout time.Duration) (LoadResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadImplLocked(name, timeout)
}

// TryLoadFilter is the filter-based form of TryLoad: every matching name
// is ensured ready before returning.
func (d *Dispatcher) TryLoadFilter(filter FilterFunc, timeout time.Duration) LoadResults {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadImplFilterLocked(filter, timeout)
}

// TryLoadOrReload cancels any in-flight load on name, forces a fresh load
// even if already loaded, then waits exactly like TryLoad.
func (d *Dispatcher) TryLoadOrReload(name string, timeout time.Duration) (LoadResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if inf, ok := d.infos[name]; ok {
		d.cancelLoading(inf)
		inf.forcedToReload = true
	}
	return d.loadImplLocked(name, timeout)
}

// TryLoadOrReloadFilter is the filter-based form of TryLoadOrReload.
func (d *Dispatcher) TryLoadOrReloadFilter(filter FilterFunc, timeout time.Duration) LoadResults {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, inf := range d.infos {
		if filter == nil || filter(name) {
			d.cancelLoading(inf)
			inf.forcedToReload = true
		}
	}
	return d.loadImplFilterLocked(filter, timeout)
}

func (d *Dispatcher) loadImplLocked(name string, timeout time.Duration) (LoadResult, bool) {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		inf, ok := d.infos[name]
		if !ok {
			return LoadResult{Name: name, Status: NotExist}, false
		}
		if inf.ready() {
			return inf.result(), true
		}
		if !inf.loading() {
			d.startLoading(name, inf)
			inf, ok = d.infos[name]
			if !ok {
				return LoadResult{Name: name, Status: NotExist}, false
			}
			if inf.ready() {
				return inf.result(), true
			}
		}
		if !d.waitLocked(deadline, hasDeadline) {
			inf, ok = d.infos[name]
			if !ok {
				return LoadResult{Name: name, Status: NotExist}, false
			}
			return inf.result(), true
		}
	}
}

func (d *Dispatcher) loadImplFilterLocked(filter FilterFunc, timeout time.Duration) LoadResults {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		names := d.matchingNamesLocked(filter)
		allReady := true
		for _, name := range names {
			inf := d.infos[name]
			if inf.ready() {
				continue
			}
			if !inf.loading() {
				d.startLoading(name, inf)
			}
			// A synchronous load has already committed by now.
			if !inf.ready() {
				allReady = false
			}
		}
		if allReady {
			return d.resultsFor(names)
		}
		if !d.waitLocked(deadline, hasDeadline) {
			return d.resultsFor(d.matchingNamesLocked(filter))
		}
	}
}

func (d *Dispatcher) resultsFor(names []string) LoadResults {
	results := make(LoadResults, 0, len(names))
	for _, name := range names {
		if inf, ok := d.infos[name]; ok {
			results = append(results, inf.result())
		}
	}
	return results
}

// waitLocked waits on the condition variable until signaled or deadline
// passes. Returns false if the deadline has already passed (caller should
// give up and return current state); true if woken by a signal with time
// still remaining.
func (d *Dispatcher) waitLocked(deadline time.Time, hasDeadline bool) bool {
	if hasDeadline && !time.Now().Before(deadline) {
		return false
	}
	if !hasDeadline {
		d.cond.Wait()
		return true
	}

	timer := time.AfterFunc(time.Until(deadline), func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()
	d.cond.Wait()
	return time.Now().Before(deadline)
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout == WAIT {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

// ReloadOutdated implements the three-pass sweep described in §4.2: decide
// which loaded-but-stale objects actually need refreshing by calling
// IsModified outside the mutex, then commit under the mutex again.
func (d *Dispatcher) ReloadOutdated() {
	type candidate struct {
		name         string
		object       Loadable
		shouldUpdate bool
	}

	d.mu.Lock()
	now := time.Now()
	var candidates []candidate
	for name, inf := range d.infos {
		if inf.loading() || !inf.loaded() {
			continue
		}
		if inf.nextUpdateTime.IsZero() || inf.nextUpdateTime.After(now) {
			continue
		}
		candidates = append(candidates, candidate{name: name, object: inf.object, shouldUpdate: inf.failedToReload()})
	}
	d.mu.Unlock()

	for i, c := range candidates {
		if c.shouldUpdate {
			continue
		}
		modified, err := c.object.IsModified()
		if err != nil {
			d.log.Error("isModified failed, forcing reload", "name", c.name, "error", err)
			modified = true
		}
		candidates[i].shouldUpdate = modified
	}

	byName := make(map[string]candidate, len(candidates))
	for _, c := range candidates {
		byName[c.name] = c
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now = time.Now()
	for name, inf := range d.infos {
		if inf.loading() {
			continue
		}
		if inf.nextUpdateTime.IsZero() || inf.nextUpdateTime.After(now) {
			continue
		}
		if inf.loaded() {
			c, ok := byName[name]
			if !ok {
				// Object pointer changed since the first pass (another
				// load already committed); nothing to do here.
				continue
			}
			if c.object != inf.object {
				continue
			}
			if c.shouldUpdate {
				d.startLoading(name, inf)
			} else {
				inf.nextUpdateTime = d.calculateNextUpdateTime(inf.object, inf.errorCount)
			}
			continue
		}
		if inf.failed() {
			d.startLoading(name, inf)
		}
	}
	d.cond.Broadcast()
}

// Close clears every Info (in-flight workers will discard their results on
// their next commit attempt since their name will be gone from the map)
// and waits for all goroutines spawned by async loads to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.infos = make(map[string]*info)
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
}
