// Package queue implements the priority job lifecycle: submit, claim,
// complete, list. Claims are race free because the store performs the
// pending -> processing flip as a single conditional update.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/codec"
	"github.com/moltgrid/backend/internal/models"
	"github.com/moltgrid/backend/internal/repository"
)

// Store is the job repository surface the service needs. Implemented
// by repository.JobRepo.
type Store interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ClaimNext(ctx context.Context, queueName string, claimer uuid.UUID) (*models.Job, error)
	Complete(ctx context.Context, id, claimer uuid.UUID, status, result string) (bool, error)
	List(ctx context.Context, f repository.ListFilter) ([]*models.Job, error)
}

// Publisher hands domain events to the webhook dispatcher. Delivery is
// fire and forget; Publish must not block the calling request.
type Publisher interface {
	Publish(ctx context.Context, agentID uuid.UUID, eventType string, data map[string]any)
}

type Service interface {
	Submit(ctx context.Context, agentID uuid.UUID, queueName, payload string, priority *int) (*models.Job, error)
	Claim(ctx context.Context, agentID uuid.UUID, queueName string) (*models.Job, error)
	Complete(ctx context.Context, jobID, claimer uuid.UUID, result string, failed bool) (*models.Job, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	List(ctx context.Context, f repository.ListFilter) ([]*models.Job, error)
}

type service struct {
	store  Store
	codec  *codec.Codec
	events Publisher
}

func NewService(store Store, c *codec.Codec, events Publisher) *service {
	return &service{store: store, codec: c, events: events}
}

var _ Service = (*service)(nil)

// Submit creates a pending job. The payload is size-checked before any
// state change and passed through the codec before persistence.
// Priority is clamped to [1,10]; nil means mid-priority.
func (s *service) Submit(ctx context.Context, agentID uuid.UUID, queueName, payload string, priority *int) (*models.Job, error) {
	if len(payload) > models.MaxPayloadBytes {
		return nil, apperr.Validation(fmt.Sprintf("payload exceeds %d bytes", models.MaxPayloadBytes))
	}
	if queueName == "" {
		queueName = models.DefaultQueueName
	}
	stored, err := s.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := &models.Job{
		ID:        uuid.New(),
		AgentID:   agentID,
		QueueName: queueName,
		Payload:   stored,
		Priority:  clampPriority(priority),
		Status:    models.JobStatusPending,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	job.Payload = payload
	return job, nil
}

func clampPriority(p *int) int {
	if p == nil {
		return models.PriorityDefault
	}
	if *p < models.PriorityMin {
		return models.PriorityMin
	}
	if *p > models.PriorityMax {
		return models.PriorityMax
	}
	return *p
}

// Claim hands the highest-priority pending job in the queue to the
// agent, or (nil, nil) when none is available. At most one claimant
// ever sees a given job here.
func (s *service) Claim(ctx context.Context, agentID uuid.UUID, queueName string) (*models.Job, error) {
	if queueName == "" {
		queueName = models.DefaultQueueName
	}
	job, err := s.store.ClaimNext(ctx, queueName, agentID)
	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	if err := s.decodeJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete finishes a processing job. Only the claimer may complete
// it, and only once; anything else is a conflict. On success the
// job.completed event is raised for the job's owner.
func (s *service) Complete(ctx context.Context, jobID, claimer uuid.UUID, result string, failed bool) (*models.Job, error) {
	if len(result) > models.MaxPayloadBytes {
		return nil, apperr.Validation(fmt.Sprintf("result exceeds %d bytes", models.MaxPayloadBytes))
	}
	status := models.JobStatusCompleted
	if failed {
		status = models.JobStatusFailed
	}
	stored, err := s.codec.Encode(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	ok, err := s.store.Complete(ctx, jobID, claimer, status, stored)
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	if !ok {
		job, err := s.store.GetByID(ctx, jobID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("job not found")
		}
		if err != nil {
			return nil, fmt.Errorf("load job: %w", err)
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != claimer {
			return nil, apperr.Conflict("job is not claimed by this agent")
		}
		return nil, apperr.Conflict("job is already " + job.Status)
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load completed job: %w", err)
	}
	if err := s.decodeJob(job); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, job.AgentID, models.EventJobCompleted, map[string]any{
		"job_id":     job.ID.String(),
		"queue_name": job.QueueName,
		"status":     job.Status,
		"claimed_by": claimer.String(),
	})
	return job, nil
}

func (s *service) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if err := s.decodeJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// List is read only. An empty status filter defaults to active work
// (pending, processing) so the view stays small.
func (s *service) List(ctx context.Context, f repository.ListFilter) ([]*models.Job, error) {
	if len(f.Statuses) == 0 {
		f.Statuses = []string{models.JobStatusPending, models.JobStatusProcessing}
	}
	for _, st := range f.Statuses {
		if !validStatus(st) {
			return nil, apperr.Validation("unknown status " + st)
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	jobs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if err := s.decodeJob(j); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func validStatus(s string) bool {
	switch s {
	case models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed:
		return true
	}
	return false
}

func (s *service) decodeJob(job *models.Job) error {
	payload, err := s.codec.Decode(job.Payload)
	if err != nil {
		return fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	job.Payload = payload
	if job.Result != nil {
		result, err := s.codec.Decode(*job.Result)
		if err != nil {
			return fmt.Errorf("decode result of job %s: %w", job.ID, err)
		}
		job.Result = &result
	}
	return nil
}
