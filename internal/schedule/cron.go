// Package schedule parses 5-field cron expressions
// ("minute hour day-of-month month day-of-week").
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron is a parsed cron expression. When both day-of-month and day-of-week
// are restricted a day matches if either field does, as in crontab(5).
type Cron struct {
	expr  string
	sched cron.Schedule
}

// Parse parses a standard expression. Each field accepts "*", single
// values, comma lists, ranges ("1-5") and steps ("*/15", "0-30/10");
// descriptors such as "@daily" are also accepted.
func Parse(expr string) (Cron, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Cron{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return Cron{expr: expr, sched: sched}, nil
}

// Next returns the first minute strictly after after that matches, in
// after's location.
func (c Cron) Next(after time.Time) (time.Time, error) {
	next := c.sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no matching cron time found for %q", c.expr)
	}
	return next, nil
}

// String returns the source expression.
func (c Cron) String() string { return c.expr }
