package dispatch

// Status is the externally-visible load state of a named object, derived
// entirely from an Info's (loading, loaded, exception) triple. It is never
// persisted — always recomputed from the authoritative Info.
type Status int

const (
	// NotLoaded means the object is known (present in the current
	// snapshot) but no load has ever been attempted.
	NotLoaded Status = iota
	// Loaded means the object has a live value and no load is in flight.
	Loaded
	// Failed means every load attempt so far raised an error and there is
	// no previously loaded value to fall back on.
	Failed
	// Loading means a load is currently in flight and there is no
	// previous value yet.
	Loading
	// LoadedAndReloading means a previous load succeeded and a refresh is
	// currently in flight.
	LoadedAndReloading
	// FailedAndReloading means every load so far has failed but a new
	// attempt is currently in flight.
	FailedAndReloading
	// NotExist means the name is absent from the dispatcher entirely —
	// it was never in any snapshot, or has since been removed.
	NotExist
)

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "NOT_LOADED"
	case Loaded:
		return "LOADED"
	case Failed:
		return "FAILED"
	case Loading:
		return "LOADING"
	case LoadedAndReloading:
		return "LOADED_AND_RELOADING"
	case FailedAndReloading:
		return "FAILED_AND_RELOADING"
	case NotExist:
		return "NOT_EXIST"
	default:
		return "UNKNOWN"
	}
}

// AllStatuses enumerates every possible Status value, for introspection
// (e.g. exposing the enum to a schema or UI).
func AllStatuses() []Status {
	return []Status{NotLoaded, Loaded, Failed, Loading, LoadedAndReloading, FailedAndReloading, NotExist}
}
