package cron

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

// ActionKind tags the CronAction tagged-union (§3).
type ActionKind string

const (
	ActionSystemEvent ActionKind = "system_event"
	ActionAgentTask   ActionKind = "agent_task"
)

// Action is the tagged-union CronJob.action field.
type Action struct {
	Kind ActionKind

	Text string // SystemEvent

	Message string // AgentTask
	Model   string // AgentTask, optional
}

// Job is a CronJob (§3 Data Model).
type Job struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Schedule Schedule   `json:"schedule"`
	Action   Action     `json:"action"`
	Enabled  bool       `json:"enabled"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	Created  time.Time  `json:"created"`
}

// Scheduler owns the job list and its on-disk persistence path. The state
// path itself is never serialized (mirrors the original's #[serde(skip)]).
type Scheduler struct {
	mu        sync.Mutex
	jobs      []Job
	statePath string
	logger    *slog.Logger
}

// NewScheduler loads existing state from statePath if present. A parse
// failure falls back to a fresh empty scheduler with a loud log line
// (StateCorrupt recovery policy: start empty, log loudly).
func NewScheduler(statePath string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{statePath: statePath, logger: logger}
	if statePath == "" {
		return s
	}
	data, err := os.ReadFile(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cron: failed to read state, starting empty", "error", err)
		}
		return s
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		logger.Warn("cron: failed to parse state, starting empty", "error", err)
		return s
	}
	s.jobs = jobs
	return s
}

// Add appends job, generating an id if empty and computing next_run from
// the current wall clock if not already set. Returns the job's id.
func (s *Scheduler) Add(job Job) string {
	return s.AddAt(job, time.Now().UTC())
}

// AddAt is Add with an explicit now, so callers (tests exercising §8's
// literal-clock scenarios) can pin the wall clock used for Created/NextRun
// instead of depending on the real clock.
func (s *Scheduler) AddAt(job Job, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Created.IsZero() {
		job.Created = now
	}
	if job.NextRun == nil {
		job.NextRun = ComputeNextRun(job.Schedule, now)
	}
	s.jobs = append(s.jobs, job)
	return job.ID
}

// Remove deletes the job with the given id. Errors if no job matched.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.jobs[:0]
	found := false
	for _, j := range s.jobs {
		if j.ID == id {
			found = true
			continue
		}
		out = append(out, j)
	}
	if !found {
		return devmanerr.New(devmanerr.NotFound, "no job with id "+id)
	}
	s.jobs = out
	return nil
}

// Update conditionally changes enabled/schedule for the job with the given
// id, recomputing next_run if the schedule changed. Errors if not found.
func (s *Scheduler) Update(id string, enabled *bool, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		if enabled != nil {
			s.jobs[i].Enabled = *enabled
		}
		if schedule != nil {
			s.jobs[i].Schedule = *schedule
			s.jobs[i].NextRun = ComputeNextRun(*schedule, time.Now().UTC())
		}
		return nil
	}
	return devmanerr.New(devmanerr.NotFound, "no job with id "+id)
}

// List returns a snapshot copy of every job.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Tick is invoked by the daemon's main loop on a 30s cadence (§4.7). For
// every enabled job whose next_run <= now, it's cloned into the due list,
// last_run is set to now, and next_run is recomputed. One-shot At jobs that
// have fired and produced no future next_run are pruned afterward; Every/Cron
// jobs are always retained. Two scheduler instances given identical state
// and `now` produce identical due lists (§4.6 Determinism).
func (s *Scheduler) Tick(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	for i := range s.jobs {
		j := &s.jobs[i]
		if !j.Enabled {
			continue
		}
		if j.NextRun == nil || j.NextRun.After(now) {
			continue
		}
		cloned := *j
		due = append(due, cloned)

		nowCopy := now
		j.LastRun = &nowCopy
		j.NextRun = ComputeNextRun(j.Schedule, now)
	}

	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if j.Schedule.Kind == ScheduleAt {
			if j.NextRun == nil && j.LastRun != nil {
				continue // one-shot fired, nothing scheduled: prune
			}
		}
		kept = append(kept, j)
	}
	s.jobs = kept

	return due
}

// Save persists the job list atomically (JSON, pretty-printed) to statePath.
func (s *Scheduler) Save() error {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	path := s.statePath
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "creating cron state dir", err)
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "encoding cron state", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "cron-*.tmp")
	if err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return devmanerr.Wrap(devmanerr.StateCorrupt, "writing cron state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return devmanerr.Wrap(devmanerr.StateCorrupt, "syncing cron state", err)
	}
	if err := tmp.Close(); err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "closing temp file", err)
	}
	return os.Rename(tmpPath, path)
}
