// Package schedule holds the pure temporal deciders: quiet-hours
// evaluation, digest planning, and reminder backoff. Nothing in this
// package touches the store or the network; every function takes "now"
// explicitly so the scanner stays testable.
package schedule

import (
	"time"

	apperrors "github.com/avitonotify/notify-server-go/internal/errors"
	"github.com/avitonotify/notify-server-go/internal/model"
)

// WindowDecision is the outcome of a quiet-hours check. When Allowed is
// false, NextAllowed is the UTC instant at which the window next opens.
type WindowDecision struct {
	Allowed     bool
	NextAllowed time.Time
}

// LoadLocation resolves an IANA timezone name, falling back to UTC when
// the name is unknown. The returned error is the non-fatal
// INVALID_TIMEZONE kind; callers log it and keep going.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, apperrors.InvalidTimezone(tz).WithCause(err)
	}
	return loc, nil
}

// EvaluateWindow decides whether a real-time notification may go out at
// now, given the link's work-hours window in tz. from > to denotes an
// overnight window wrapping midnight; from == to means always open.
// Window boundaries are resolved through the timezone database on every
// call, so DST shifts are picked up without any cached offset.
func EvaluateWindow(tz string, from, to model.TimeOfDay, now time.Time) (WindowDecision, error) {
	loc, tzErr := LoadLocation(tz)

	if from == to {
		return WindowDecision{Allowed: true}, tzErr
	}

	local := now.In(loc)
	minute := model.NewTimeOfDay(local.Hour(), local.Minute())

	var allowed bool
	if from < to {
		allowed = minute >= from && minute < to
	} else {
		allowed = minute >= from || minute < to
	}
	if allowed {
		return WindowDecision{Allowed: true}, tzErr
	}

	next := from.On(now, loc)
	if !next.After(now) {
		next = from.On(now.AddDate(0, 0, 1), loc)
	}
	return WindowDecision{Allowed: false, NextAllowed: next.UTC()}, tzErr
}
