package dispatch

// Lifetime bounds how long a loaded object stays fresh before it is due
// for a refresh. Both bounds zero means "never refresh automatically".
type Lifetime struct {
	MinSec uint64
	MaxSec uint64
}

// Loadable is the opaque live object a factory produces from an
// ObjectConfig. The dispatcher only ever calls these five methods; it has
// no idea whether the concrete type is a dictionary, a model, or a UDF.
type Loadable interface {
	// Clone returns a cheap copy denoting "configuration unchanged, reuse
	// this version". Called by a factory, not by the dispatcher directly.
	Clone() Loadable

	// IsModified reports whether the object's underlying data (not its
	// configuration) has changed since it was loaded. It is consulted once
	// the object's next update time has passed: true triggers a reload,
	// false only schedules the next check. May return an error; callers
	// treat that conservatively as "yes, modified".
	IsModified() (bool, error)

	// SupportUpdates reports whether this object ever wants to be
	// refreshed at all.
	SupportUpdates() bool

	// GetLifetime returns the object's refresh window.
	GetLifetime() Lifetime

	// GetName returns the object's name, matching the name it was loaded
	// under.
	GetName() string
}
