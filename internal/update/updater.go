// Package update implements the Periodic Updater: a single background
// worker that periodically re-reads configuration and sweeps for outdated
// objects.
package update

import (
	"sync"
	"time"

	"github.com/dispatchkit/extloader/internal/configread"
)

// CheckPeriod is the fixed wake-up interval, matching the reference
// implementation's 5-second compile-time constant.
const CheckPeriod = 5 * time.Second

// Reader is the subset of configread.Reader the updater consumes.
type Reader interface {
	Read() *configread.Snapshot
}

// Dispatcher is the subset of dispatch.Dispatcher the updater consumes.
type Dispatcher interface {
	SetConfiguration(snapshot *configread.Snapshot)
	ReloadOutdated()
}

// Logger is the minimal logging surface update needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PeriodicUpdater drives reader.Read() + dispatcher.SetConfiguration() +
// dispatcher.ReloadOutdated() on a fixed cadence, on a single dedicated
// goroutine. Enable(true) and Enable(false) are idempotent and safe to
// call concurrently.
type PeriodicUpdater struct {
	reader     Reader
	dispatcher Dispatcher
	log        Logger
	period     time.Duration
	schedule   Schedule

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPeriodicUpdater builds a PeriodicUpdater. A nil schedule falls back
// to a fixed CheckPeriod tick.
func NewPeriodicUpdater(reader Reader, dispatcher Dispatcher, log Logger, schedule Schedule) *PeriodicUpdater {
	if log == nil {
		log = noopLogger{}
	}
	return &PeriodicUpdater{
		reader:     reader,
		dispatcher: dispatcher,
		log:        log,
		period:     CheckPeriod,
		schedule:   schedule,
	}
}

// Enable starts (on=true) or stops (on=false) the worker. Both directions
// are idempotent: enabling an already-running updater, or disabling an
// already-stopped one, are no-ops.
func (u *PeriodicUpdater) Enable(on bool) {
	u.mu.Lock()

	if on {
		if !u.running {
			u.running = true
			u.stop = make(chan struct{})
			u.done = make(chan struct{})
			go u.run(u.stop, u.done)
		}
		u.mu.Unlock()
		return
	}

	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	close(u.stop)
	done := u.done
	u.mu.Unlock()
	<-done
}

// Close stops the worker; safe to call multiple times.
func (u *PeriodicUpdater) Close() {
	u.Enable(false)
}

// run drives the wake-up loop. With no schedule it's a fixed-period
// ticker, matching the reference's wait_for(check_period_sec). With a
// schedule (the cron override), each wake-up computes its own next delay,
// since cron intervals are not generally uniform.
func (u *PeriodicUpdater) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if u.schedule == nil {
		ticker := time.NewTicker(u.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				u.tick()
			}
		}
	}

	for {
		timer := time.NewTimer(u.nextDelay())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			u.tick()
		}
	}
}

func (u *PeriodicUpdater) nextDelay() time.Duration {
	now := time.Now()
	next := u.schedule.Next(now)
	d := next.Sub(now)
	if d <= 0 {
		return u.period
	}
	return d
}

func (u *PeriodicUpdater) tick() {
	snapshot := u.reader.Read()
	u.dispatcher.SetConfiguration(snapshot)
	u.dispatcher.ReloadOutdated()
}
