package queue

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/codec"
	"github.com/moltgrid/backend/internal/models"
	"github.com/moltgrid/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// memStore reproduces the repository contract in memory: ClaimNext and
// Complete are conditional transitions performed under one lock, the
// same atomicity the SQL store gets from single-row updates.
type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
	seq  int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *memStore) Create(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *j
	cp.CreatedAt = time.Unix(int64(m.seq), 0)
	m.jobs[j.ID] = &cp
	j.CreatedAt = cp.CreatedAt
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ClaimNext(_ context.Context, queueName string, claimer uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*models.Job
	for _, j := range m.jobs {
		if j.QueueName == queueName && j.Status == models.JobStatusPending {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority > candidates[b].Priority
		}
		return candidates[a].CreatedAt.Before(candidates[b].CreatedAt)
	})
	j := candidates[0]
	now := time.Now()
	j.Status = models.JobStatusProcessing
	j.ClaimedBy = &claimer
	j.ClaimedAt = &now
	cp := *j
	return &cp, nil
}

func (m *memStore) Complete(_ context.Context, id, claimer uuid.UUID, status, result string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing || j.ClaimedBy == nil || *j.ClaimedBy != claimer {
		return false, nil
	}
	now := time.Now()
	j.Status = status
	j.Result = &result
	j.CompletedAt = &now
	return true, nil
}

func (m *memStore) List(_ context.Context, f repository.ListFilter) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Job
	for _, j := range m.jobs {
		if f.QueueName != "" && j.QueueName != f.QueueName {
			continue
		}
		if f.AgentID != nil && j.AgentID != *f.AgentID {
			continue
		}
		match := false
		for _, st := range f.Statuses {
			if j.Status == st {
				match = true
			}
		}
		if match {
			cp := *j
			list = append(list, &cp)
		}
	}
	return list, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	agentID   uuid.UUID
	eventType string
	data      map[string]any
}

func (p *recordingPublisher) Publish(_ context.Context, agentID uuid.UUID, eventType string, data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{agentID: agentID, eventType: eventType, data: data})
}

func newTestService(t *testing.T) (*service, *memStore, *recordingPublisher) {
	t.Helper()
	c, err := codec.New("")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	store := newMemStore()
	pub := &recordingPublisher{}
	return NewService(store, c, pub), store, pub
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSubmitDefaultsAndClamping(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	agent := uuid.New()

	job, err := svc.Submit(ctx, agent, "", "work", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.QueueName != models.DefaultQueueName {
		t.Errorf("queue_name = %q, want %q", job.QueueName, models.DefaultQueueName)
	}
	if job.Priority != models.PriorityDefault {
		t.Errorf("priority = %d, want %d", job.Priority, models.PriorityDefault)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}

	low := -3
	job, err = svc.Submit(ctx, agent, "q", "work", &low)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Priority != models.PriorityMin {
		t.Errorf("priority = %d, want clamped to %d", job.Priority, models.PriorityMin)
	}

	high := 99
	job, err = svc.Submit(ctx, agent, "q", "work", &high)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Priority != models.PriorityMax {
		t.Errorf("priority = %d, want clamped to %d", job.Priority, models.PriorityMax)
	}
}

func TestSubmitOversizedPayloadRejected(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), uuid.New(), "q", strings.Repeat("x", models.MaxPayloadBytes+1), nil)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.jobs) != 0 {
		t.Error("oversized payload reached the store")
	}
}

func TestPriorityOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	worker := uuid.New()

	// Priorities [3, 9, 1, 9] submitted in that order.
	var ids []uuid.UUID
	for _, p := range []int{3, 9, 1, 9} {
		p := p
		job, err := svc.Submit(ctx, owner, "q", "job", &p)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, job.ID)
	}

	// The two priority-9 jobs come first in submission order, then 3, then 1.
	want := []uuid.UUID{ids[1], ids[3], ids[0], ids[2]}
	for i, wantID := range want {
		job, err := svc.Claim(ctx, worker, "q")
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("claim %d: queue empty", i)
		}
		if job.ID != wantID {
			t.Errorf("claim %d returned job %s, want %s", i, job.ID, wantID)
		}
		if job.Status != models.JobStatusProcessing {
			t.Errorf("claim %d status = %q, want processing", i, job.Status)
		}
	}

	job, err := svc.Claim(ctx, worker, "q")
	if err != nil || job != nil {
		t.Errorf("exhausted queue: want (nil, nil), got (%v, %v)", job, err)
	}
}

func TestClaimExclusivity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	job, err := svc.Submit(ctx, owner, "q", "solo", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	const claimers = 32
	var wg sync.WaitGroup
	winners := make(chan uuid.UUID, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Claim(ctx, uuid.New(), "q")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if got != nil {
				winners <- got.ID
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for id := range winners {
		count++
		if id != job.ID {
			t.Errorf("claimed unexpected job %s", id)
		}
	}
	if count != 1 {
		t.Errorf("job claimed by %d agents, want exactly 1", count)
	}
}

func TestCompleteOwnership(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	worker := uuid.New()
	intruder := uuid.New()

	job, err := svc.Submit(ctx, owner, "q", "work", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Claim(ctx, worker, "q"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Wrong claimer.
	if _, err := svc.Complete(ctx, job.ID, intruder, "stolen", false); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("intruder complete: expected conflict, got %v", err)
	}

	// Rightful claimer.
	done, err := svc.Complete(ctx, job.ID, worker, "done!", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.JobStatusCompleted {
		t.Errorf("status = %q, want completed", done.Status)
	}
	if done.Result == nil || *done.Result != "done!" {
		t.Errorf("result = %v, want done!", done.Result)
	}

	// Double complete.
	if _, err := svc.Complete(ctx, job.ID, worker, "again", false); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("double complete: expected conflict, got %v", err)
	}

	// Unknown job.
	if _, err := svc.Complete(ctx, uuid.New(), worker, "x", false); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown job: expected not_found, got %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.eventType != models.EventJobCompleted {
		t.Errorf("event type = %q, want %q", ev.eventType, models.EventJobCompleted)
	}
	if ev.agentID != owner {
		t.Errorf("event owner = %s, want job owner %s", ev.agentID, owner)
	}
}

func TestCompleteFailedStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	worker := uuid.New()

	job, err := svc.Submit(ctx, uuid.New(), "q", "doomed", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Claim(ctx, worker, "q"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	done, err := svc.Complete(ctx, job.ID, worker, "boom", true)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Status != models.JobStatusFailed {
		t.Errorf("status = %q, want failed", done.Status)
	}
}

func TestListDefaultsToActiveWork(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	worker := uuid.New()

	a, _ := svc.Submit(ctx, owner, "q", "a", nil)
	if _, err := svc.Submit(ctx, owner, "q", "b", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Claim(ctx, worker, "q"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.Complete(ctx, a.ID, worker, "done", false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	active, err := svc.List(ctx, repository.ListFilter{AgentID: &owner})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active list has %d jobs, want 1 (completed excluded)", len(active))
	}

	completed, err := svc.List(ctx, repository.ListFilter{AgentID: &owner, Statuses: []string{models.JobStatusCompleted}})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("completed list has %d jobs, want 1", len(completed))
	}

	if _, err := svc.List(ctx, repository.ListFilter{Statuses: []string{"bogus"}}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bogus status: expected validation error, got %v", err)
	}
}

func TestPayloadRoundTripsThroughCodec(t *testing.T) {
	key := make([]byte, 32)
	c, err := codec.New(base64Key(key))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	store := newMemStore()
	svc := NewService(store, c, &recordingPublisher{})
	ctx := context.Background()

	job, err := svc.Submit(ctx, uuid.New(), "q", "secret work", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The stored row must not carry the plaintext.
	raw := store.jobs[job.ID]
	if raw.Payload == "secret work" {
		t.Error("payload stored in plaintext despite configured key")
	}

	claimed, err := svc.Claim(ctx, uuid.New(), "q")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Payload != "secret work" {
		t.Errorf("claimed payload = %q, want decrypted plaintext", claimed.Payload)
	}
}

func base64Key(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
