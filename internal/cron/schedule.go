// Package cron implements the cron wheel (§4.6), ported line-for-line in
// semantics from _examples/original_source/src/cron.rs — the Rust
// implementation this spec was distilled from.
package cron

import (
	"time"

	"github.com/adhocore/gronx"
)

// ScheduleKind tags the Schedule tagged-union (§3 Data Model).
type ScheduleKind string

const (
	ScheduleAt    ScheduleKind = "at"
	ScheduleEvery ScheduleKind = "every"
	ScheduleCron  ScheduleKind = "cron"
)

// Schedule is the tagged-union CronJob.schedule field.
type Schedule struct {
	Kind ScheduleKind

	At time.Time // ScheduleAt

	IntervalMS int64      // ScheduleEvery
	Anchor     *time.Time // ScheduleEvery, optional

	Expr string // ScheduleCron
}

// ComputeNextRun is the pure function at the heart of the cron wheel (§4.6,
// §8): given a schedule and a point in time "after", returns the earliest
// strictly-later firing, or nil if none exists (only possible for a past
// At, or a malformed Cron expression).
func ComputeNextRun(s Schedule, after time.Time) *time.Time {
	switch s.Kind {
	case ScheduleAt:
		if s.At.After(after) {
			t := s.At
			return &t
		}
		return nil
	case ScheduleEvery:
		return computeNextEvery(s, after)
	case ScheduleCron:
		return computeNextCron(s.Expr, after)
	default:
		return nil
	}
}

func computeNextEvery(s Schedule, after time.Time) *time.Time {
	base := after
	if s.Anchor != nil {
		base = *s.Anchor
	}
	if base.After(after) {
		t := base
		return &t
	}
	interval := time.Duration(s.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return nil
	}
	elapsed := after.Sub(base)
	periods := elapsed/interval + 1
	next := base.Add(periods * interval)
	return &next
}

// computeNextCron delegates field matching to gronx (a maintained, pack-
// adjacent cron parser) rather than the original's hand-rolled linear scan;
// see DESIGN.md for why this substitution preserves the testable property
// (the returned instant satisfies every field constraint and is strictly
// later than `after`) without reimplementing minute-by-minute brute force.
func computeNextCron(expr string, after time.Time) *time.Time {
	if !gronx.IsValid(expr) {
		return nil
	}
	next, err := gronx.NextTickAfter(expr, after, false)
	if err != nil {
		return nil
	}
	if !next.After(after) {
		next, err = gronx.NextTickAfter(expr, after.Add(time.Minute), false)
		if err != nil {
			return nil
		}
	}
	return &next
}
