package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/trainer-api/pkg/errors"
	"github.com/jwalitptl/trainer-api/pkg/jobqueue"
	"github.com/jwalitptl/trainer-api/pkg/logger"

	"github.com/jwalitptl/trainer-api/internal/model"
)

// fakeReminderRepo mirrors the postgres repository's semantics in
// memory, including the newest-unsent-wins lookup and the conditional
// pause guard.
type fakeReminderRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.ReminderRecord
	seq     int64
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{records: make(map[uuid.UUID]*model.ReminderRecord)}
}

func (r *fakeReminderRepo) Create(_ context.Context, rec *model.ReminderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.seq++
	rec.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Nanosecond)
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *fakeReminderRepo) Get(_ context.Context, id uuid.UUID) (*model.ReminderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("reminder", nil)
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeReminderRepo) FindCurrent(_ context.Context, userID uuid.UUID, day, stepIndex int) (*model.ReminderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *model.ReminderRecord
	for _, rec := range r.records {
		if rec.UserID != userID || rec.Day != day || rec.StepIndex != stepIndex || rec.Sent {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, apperrors.NotFound("reminder", nil)
	}
	cp := *newest
	return &cp, nil
}

func (r *fakeReminderRepo) SetJob(_ context.Context, id uuid.UUID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Sent {
		return apperrors.NotFound("reminder", nil)
	}
	rec.JobID = &jobID
	rec.Paused = false
	return nil
}

func (r *fakeReminderRepo) MarkPaused(_ context.Context, id uuid.UUID, prevJobID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Sent || !jobIDEqual(rec.JobID, prevJobID) {
		return false, nil
	}
	rec.JobID = nil
	rec.Paused = true
	return true, nil
}

func (r *fakeReminderRepo) Reschedule(_ context.Context, id uuid.UUID, endTs int64, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Sent {
		return apperrors.NotFound("reminder", nil)
	}
	rec.EndTs = endTs
	rec.JobID = &jobID
	rec.Paused = false
	return nil
}

func (r *fakeReminderRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Sent {
		return apperrors.NotFound("reminder", nil)
	}
	rec.Sent = true
	rec.JobID = nil
	return nil
}

func (r *fakeReminderRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *fakeReminderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func jobIDEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type fakeSubsRepo struct {
	subs []*model.PushSubscription
}

func (r *fakeSubsRepo) Save(_ context.Context, sub *model.PushSubscription) error {
	r.subs = append(r.subs, sub)
	return nil
}

func (r *fakeSubsRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*model.PushSubscription, error) {
	var out []*model.PushSubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSubsRepo) DeleteByEndpoint(_ context.Context, endpoint string) error {
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	r.subs = kept
	return nil
}

type enqueuedJob struct {
	id      string
	delay   time.Duration
	payload []byte
}

type fakeQueue struct {
	mu         sync.Mutex
	active     map[string]enqueuedJob
	enqueued   []enqueuedJob
	cancelled  []string
	enqueueErr error
	nextID     int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{active: make(map[string]enqueuedJob)}
}

func (q *fakeQueue) Enqueue(_ context.Context, delay time.Duration, payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.nextID++
	job := enqueuedJob{id: fmt.Sprintf("job-%d", q.nextID), delay: delay, payload: payload}
	q.active[job.id] = job
	q.enqueued = append(q.enqueued, job)
	return job.id, nil
}

func (q *fakeQueue) Cancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.active[jobID]; !ok {
		return jobqueue.ErrJobNotFound
	}
	delete(q.active, jobID)
	q.cancelled = append(q.cancelled, jobID)
	return nil
}

func (q *fakeQueue) activeCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func newTestService(repo *fakeReminderRepo, queue *fakeQueue) Service {
	logg := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewService(repo, &fakeSubsRepo{}, queue, logg, nil)
}

func TestCreateSchedulesJob(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	err := svc.Create(context.Background(), userID, 2, 0, 30, &model.ReminderPayload{StepTitle: "Plank"})
	require.NoError(t, err)

	rec, err := repo.FindCurrent(context.Background(), userID, 2, 0)
	require.NoError(t, err)
	assert.False(t, rec.Paused)
	assert.False(t, rec.Sent)
	require.NotNil(t, rec.JobID)
	assert.Equal(t, "Plank", rec.StepTitle)

	// Deadline lands within a second of now+duration.
	assert.InDelta(t, time.Now().Unix()+30, rec.EndTs, 1)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, 30*time.Second, queue.enqueued[0].delay)
	assert.Equal(t, *rec.JobID, queue.enqueued[0].id)
}

func TestCreateRejectsNonPositiveDuration(t *testing.T) {
	svc := newTestService(newFakeReminderRepo(), newFakeQueue())

	err := svc.Create(context.Background(), uuid.New(), 0, 0, 0, nil)
	assert.Error(t, err)

	err = svc.Create(context.Background(), uuid.New(), 0, 0, -5, nil)
	assert.Error(t, err)
}

func TestCreateEnqueueFailureIsNonFatal(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	queue.enqueueErr = errors.New("queue down")
	svc := newTestService(repo, queue)
	userID := uuid.New()

	err := svc.Create(context.Background(), userID, 1, 1, 60, nil)
	require.NoError(t, err)

	// The row is the durable intent; it survives without a job handle.
	rec, err := repo.FindCurrent(context.Background(), userID, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, rec.JobID)
}

func TestPauseCancelsJobAndFreezes(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 60, nil))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))

	rec, err := repo.FindCurrent(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	assert.True(t, rec.Paused)
	assert.Nil(t, rec.JobID)
	assert.Len(t, queue.cancelled, 1)
	assert.Zero(t, queue.activeCount())
}

func TestPauseIdempotent(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 60, nil))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))

	rec, err := repo.FindCurrent(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	assert.True(t, rec.Paused)
	assert.Nil(t, rec.JobID)
	assert.Len(t, queue.cancelled, 1)
}

func TestPauseWithoutRecordIsNoop(t *testing.T) {
	svc := newTestService(newFakeReminderRepo(), newFakeQueue())
	assert.NoError(t, svc.Pause(context.Background(), uuid.New(), 3, 7))
}

func TestResumeReschedulesFromClientRemaining(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 60, nil))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))
	require.NoError(t, svc.Resume(context.Background(), userID, 0, 0, 50))

	rec, err := repo.FindCurrent(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	assert.False(t, rec.Paused)
	require.NotNil(t, rec.JobID)

	// The client's live countdown wins over the stale end_ts.
	assert.InDelta(t, time.Now().Unix()+50, rec.EndTs, 1)

	require.Len(t, queue.enqueued, 2)
	assert.Equal(t, 50*time.Second, queue.enqueued[1].delay)
	assert.Equal(t, *rec.JobID, queue.enqueued[1].id)
}

func TestResumeNonPositiveRemainingDeletes(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 60, nil))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))
	require.NoError(t, svc.Resume(context.Background(), userID, 0, 0, 0))

	// Deadline already passed: no record, and no zero-delay job either.
	assert.Zero(t, repo.count())
	require.Len(t, queue.enqueued, 1)
	assert.Zero(t, queue.activeCount())
}

func TestResumeSynthesizesMissingRecord(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Resume(context.Background(), userID, 4, 2, 45))

	rec, err := repo.FindCurrent(context.Background(), userID, 4, 2)
	require.NoError(t, err)
	require.NotNil(t, rec.JobID)
	assert.InDelta(t, time.Now().Unix()+45, rec.EndTs, 1)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, 45*time.Second, queue.enqueued[0].delay)
}

func TestResumeMissingRecordNonPositiveIsNoop(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)

	require.NoError(t, svc.Resume(context.Background(), uuid.New(), 0, 0, -3))
	assert.Zero(t, repo.count())
	assert.Empty(t, queue.enqueued)
}

func TestResetDeletesAndCancels(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 30, nil))
	require.NoError(t, svc.Reset(context.Background(), userID, 0, 0))

	assert.Zero(t, repo.count())
	assert.Zero(t, queue.activeCount())
}

func TestResetIdempotent(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 30, nil))
	require.NoError(t, svc.Reset(context.Background(), userID, 0, 0))
	require.NoError(t, svc.Reset(context.Background(), userID, 0, 0))

	assert.Zero(t, repo.count())
	assert.Len(t, queue.cancelled, 1)
}

func TestResetFromPausedState(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 30, nil))
	require.NoError(t, svc.Pause(context.Background(), userID, 0, 0))
	require.NoError(t, svc.Reset(context.Background(), userID, 0, 0))

	assert.Zero(t, repo.count())
	assert.Zero(t, queue.activeCount())
}

func TestDuplicateCreateNewestWins(t *testing.T) {
	repo := newFakeReminderRepo()
	queue := newFakeQueue()
	svc := newTestService(repo, queue)
	userID := uuid.New()

	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 30, &model.ReminderPayload{StepTitle: "first"}))
	require.NoError(t, svc.Create(context.Background(), userID, 0, 0, 90, &model.ReminderPayload{StepTitle: "second"}))

	rec, err := repo.FindCurrent(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.StepTitle)
}
