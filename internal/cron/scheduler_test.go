package cron

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing time %q: %v", s, err)
	}
	return ts
}

// TestEveryFiveMinutes_Scenario1 mirrors spec.md §8 scenario 1: an empty
// state file, a "*/5 * * * *" cron job, and the literal clock values given
// in the spec.
func TestEveryFiveMinutes_Scenario1(t *testing.T) {
	sched := NewScheduler("", nil)
	job := Job{
		Name:     "ping",
		Schedule: Schedule{Kind: ScheduleCron, Expr: "*/5 * * * *"},
		Action:   Action{Kind: ActionSystemEvent, Text: "ping"},
		Enabled:  true,
	}
	clock := mustParse(t, "2026-02-01T12:03:00Z")
	id := sched.AddAt(job, clock)

	jobs := sched.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].NextRun == nil {
		t.Fatalf("expected next_run to be set")
	}
	want := mustParse(t, "2026-02-01T12:05:00Z")
	if !jobs[0].NextRun.Equal(want) {
		t.Errorf("next_run = %v, want %v", jobs[0].NextRun, want)
	}

	due := sched.Tick(mustParse(t, "2026-02-01T12:05:00Z"))
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected job %s to be due, got %+v", id, due)
	}

	jobs = sched.List()
	wantNext := mustParse(t, "2026-02-01T12:10:00Z")
	if !jobs[0].NextRun.Equal(wantNext) {
		t.Errorf("after tick, next_run = %v, want %v", jobs[0].NextRun, wantNext)
	}
}

func TestComputeNextRun_EveryInterval(t *testing.T) {
	after := mustParse(t, "2026-01-01T00:00:00Z")
	s := Schedule{Kind: ScheduleEvery, IntervalMS: 60_000}
	next := ComputeNextRun(s, after)
	if next == nil {
		t.Fatal("expected a next run")
	}
	if !next.After(after) {
		t.Errorf("next run %v is not after %v", next, after)
	}
}

func TestComputeNextRun_AtPast(t *testing.T) {
	s := Schedule{Kind: ScheduleAt, At: mustParse(t, "2020-01-01T00:00:00Z")}
	next := ComputeNextRun(s, mustParse(t, "2026-01-01T00:00:00Z"))
	if next != nil {
		t.Errorf("expected nil for a past At schedule, got %v", next)
	}
}

func TestComputeNextRun_AtFuture(t *testing.T) {
	future := mustParse(t, "2030-01-01T00:00:00Z")
	s := Schedule{Kind: ScheduleAt, At: future}
	next := ComputeNextRun(s, mustParse(t, "2026-01-01T00:00:00Z"))
	if next == nil || !next.Equal(future) {
		t.Errorf("expected %v, got %v", future, next)
	}
}

// TestOneShotAtJobPruned verifies the original's retain rule: an At job
// that fires and has no future next_run is dropped from the job list.
func TestOneShotAtJobPruned(t *testing.T) {
	sched := NewScheduler("", nil)
	fireAt := mustParse(t, "2026-01-01T00:00:00Z")
	sched.AddAt(Job{
		Name:     "one-shot",
		Schedule: Schedule{Kind: ScheduleAt, At: fireAt},
		Action:   Action{Kind: ActionSystemEvent, Text: "fire once"},
		Enabled:  true,
	}, fireAt.Add(-time.Minute))

	due := sched.Tick(fireAt.Add(time.Second))
	if len(due) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(due))
	}
	if len(sched.List()) != 0 {
		t.Errorf("expected the one-shot job to be pruned after firing")
	}
}

func TestSchedulerAddRemove(t *testing.T) {
	sched := NewScheduler("", nil)
	id := sched.Add(Job{Name: "x", Schedule: Schedule{Kind: ScheduleEvery, IntervalMS: 1000}, Action: Action{Kind: ActionSystemEvent, Text: "x"}, Enabled: true})
	if len(sched.List()) != 1 {
		t.Fatalf("expected 1 job")
	}
	if err := sched.Remove(id); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(sched.List()) != 0 {
		t.Errorf("expected 0 jobs after remove")
	}
	if err := sched.Remove(id); err == nil {
		t.Errorf("expected error removing an already-removed job")
	}
}
