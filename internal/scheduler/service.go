// Package scheduler owns scheduled tasks: their CRUD surface and the
// background loop that materializes due schedules into queue
// submissions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/models"
)

// Store is the schedule repository surface. Implemented by
// repository.ScheduleRepo.
type Store interface {
	Create(ctx context.Context, t *models.ScheduledTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.ScheduledTask, error)
	SetEnabled(ctx context.Context, id, agentID uuid.UUID, enabled bool) (bool, error)
	Delete(ctx context.Context, id, agentID uuid.UUID) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error)
	MarkFired(ctx context.Context, id uuid.UUID, firedAt, nextRunAt time.Time) error
}

type Service interface {
	Create(ctx context.Context, agentID uuid.UUID, cronExpr, queueName, payload string, priority *int) (*models.ScheduledTask, error)
	List(ctx context.Context, agentID uuid.UUID) ([]*models.ScheduledTask, error)
	Get(ctx context.Context, id, agentID uuid.UUID) (*models.ScheduledTask, error)
	SetEnabled(ctx context.Context, id, agentID uuid.UUID, enabled bool) (*models.ScheduledTask, error)
	Delete(ctx context.Context, id, agentID uuid.UUID) error
}

type service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *service {
	return &service{store: store, now: time.Now}
}

var _ Service = (*service)(nil)

// parseCron accepts the classic 5-field expression.
func parseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, apperr.Validation("invalid cron expression: " + expr)
	}
	return sched, nil
}

func (s *service) Create(ctx context.Context, agentID uuid.UUID, cronExpr, queueName, payload string, priority *int) (*models.ScheduledTask, error) {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return nil, err
	}
	if len(payload) > models.MaxPayloadBytes {
		return nil, apperr.Validation(fmt.Sprintf("payload exceeds %d bytes", models.MaxPayloadBytes))
	}
	if queueName == "" {
		queueName = models.DefaultQueueName
	}
	p := models.PriorityDefault
	if priority != nil {
		p = *priority
		if p < models.PriorityMin {
			p = models.PriorityMin
		}
		if p > models.PriorityMax {
			p = models.PriorityMax
		}
	}
	task := &models.ScheduledTask{
		ID:        uuid.New(),
		AgentID:   agentID,
		CronExpr:  cronExpr,
		QueueName: queueName,
		Payload:   payload,
		Priority:  p,
		Enabled:   true,
		NextRunAt: sched.Next(s.now()),
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return task, nil
}

func (s *service) List(ctx context.Context, agentID uuid.UUID) ([]*models.ScheduledTask, error) {
	return s.store.ListByAgent(ctx, agentID)
}

func (s *service) Get(ctx context.Context, id, agentID uuid.UUID) (*models.ScheduledTask, error) {
	task, err := s.store.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if task.AgentID != agentID {
		// Another agent's schedule is invisible, not forbidden.
		return nil, apperr.NotFound("schedule not found")
	}
	return task, nil
}

// SetEnabled toggles materialization. The change takes effect on the
// next scheduler tick; there is no mid-tick cancellation.
func (s *service) SetEnabled(ctx context.Context, id, agentID uuid.UUID, enabled bool) (*models.ScheduledTask, error) {
	ok, err := s.store.SetEnabled(ctx, id, agentID, enabled)
	if err != nil {
		return nil, fmt.Errorf("toggle schedule: %w", err)
	}
	if !ok {
		return nil, apperr.NotFound("schedule not found")
	}
	return s.Get(ctx, id, agentID)
}

func (s *service) Delete(ctx context.Context, id, agentID uuid.UUID) error {
	ok, err := s.store.Delete(ctx, id, agentID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if !ok {
		return apperr.NotFound("schedule not found")
	}
	return nil
}
