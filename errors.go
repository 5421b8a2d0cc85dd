package extloader

import (
	"errors"
	"fmt"

	"github.com/dispatchkit/extloader/internal/dispatch"
)

// Sentinel errors returned by CheckLoaded for caller misuse, matching
// §6's distinct messages for still-loading, unknown, and
// not-tried-to-load.
var (
	ErrStillLoading   = errors.New("extloader: object is still loading")
	ErrUnknownObject  = errors.New("extloader: object is not known to the loader")
	ErrNeverAttempted = errors.New("extloader: object has never been loaded")
)

// LogicError wraps dispatch.ErrLogicError for the public API: a factory
// returned neither an object nor an error, which is a programmer bug, not
// a normal load failure.
type LogicError struct {
	Name string
	err  error
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("extloader: logic error loading %q: %v", e.Name, e.err)
}

func (e *LogicError) Unwrap() error { return e.err }

func asLogicError(name string, err error) error {
	if errors.Is(err, dispatch.ErrLogicError) {
		return &LogicError{Name: name, err: err}
	}
	return err
}
