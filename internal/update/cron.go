package update

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next wake-up time for the updater, allowing a
// cron expression to override the fixed CheckPeriod cadence.
type Schedule interface {
	Next(from time.Time) time.Time
}

// cronSchedule adapts a parsed robfig/cron expression to Schedule.
type cronSchedule struct {
	spec cron.Schedule
}

// NewCronSchedule parses a standard 5-field cron expression and returns a
// Schedule the PeriodicUpdater can wake up on, in place of the fixed
// 5-second check period. This has no reference-implementation equivalent;
// it lets operators align refresh sweeps to low-traffic windows instead of
// a constant poll.
func NewCronSchedule(expr string) (Schedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	return cronSchedule{spec: spec}, nil
}

func (c cronSchedule) Next(from time.Time) time.Time {
	return c.spec.Next(from)
}
