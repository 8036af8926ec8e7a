// Package cronclock resolves 5-field cron expressions to fire instants.
// All evaluation happens in UTC.
package cronclock

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression marks a cron expression that can never be scheduled.
// It is a permanent configuration error, surfaced at write time.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Standard 5-field form only: minute, hour, day-of-month, month, day-of-week.
// No @descriptors, no seconds field.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate reports whether expr parses as a standard 5-field expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return nil
}

// ResolveNext returns the soonest instant strictly after from that matches
// expr.
func ResolveNext(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	next := sched.Next(from.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q: no upcoming fire time", ErrInvalidExpression, expr)
	}

	return next, nil
}

// Matches reports whether instant (truncated to the minute) satisfies expr.
func Matches(expr string, instant time.Time) (bool, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	minute := instant.UTC().Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Minute)).Equal(minute), nil
}
