package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/models"
)

// Submitter enqueues a materialized schedule firing. Implemented by
// queue.Service.
type Submitter interface {
	Submit(ctx context.Context, agentID uuid.UUID, queueName, payload string, priority *int) (*models.Job, error)
}

// Scheduler is the background loop. It is its own scheduling unit with
// an explicit tick interval and shutdown hook, so a single tick can be
// driven synchronously in tests.
type Scheduler struct {
	store    Store
	jobs     Submitter
	interval time.Duration
	log      *slog.Logger
}

func New(store Store, jobs Submitter, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: store, jobs: jobs, interval: interval, log: log}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick materializes every enabled schedule whose next_run_at has
// passed. Schedules are processed independently: one failure is logged
// and the rest continue. Missed firings are caught up once — the next
// occurrence is computed from now, never replayed per missed slot.
// Returns the number of jobs created.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.Error("scheduler: list due schedules failed", "error", err)
		return 0
	}

	fired := 0
	for _, task := range due {
		sched, err := parseCron(task.CronExpr)
		if err != nil {
			// A stored expression that no longer parses cannot fire;
			// park it one interval ahead so it stops hot-looping.
			s.log.Error("scheduler: stored cron expression invalid", "task_id", task.ID, "cron_expr", task.CronExpr)
			if err := s.store.MarkFired(ctx, task.ID, now, now.Add(s.interval)); err != nil {
				s.log.Error("scheduler: park invalid schedule failed", "task_id", task.ID, "error", err)
			}
			continue
		}

		p := task.Priority
		if _, err := s.jobs.Submit(ctx, task.AgentID, task.QueueName, task.Payload, &p); err != nil {
			s.log.Error("scheduler: materialize schedule failed", "task_id", task.ID, "error", err)
			continue
		}

		next := sched.Next(now)
		if err := s.store.MarkFired(ctx, task.ID, now, next); err != nil {
			s.log.Error("scheduler: advance schedule failed", "task_id", task.ID, "error", err)
			continue
		}
		fired++
		s.log.Info("scheduler: materialized schedule", "task_id", task.ID, "queue_name", task.QueueName, "next_run_at", next)
	}
	return fired
}
