// Package scheduler holds the reminder state machine. Each operation
// addresses the authoritative (most-recent, unsent) record for a
// (user, day, stepIndex) key and mutates the record store and the job
// queue together: the row is the durable intent, the queued job only a
// delivery accelerant, so queue failures never abort a store mutation.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/trainer-api/pkg/errors"
	"github.com/jwalitptl/trainer-api/pkg/jobqueue"
	"github.com/jwalitptl/trainer-api/pkg/logger"
	"github.com/jwalitptl/trainer-api/pkg/metrics"

	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/repository"
)

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, day, stepIndex int, durationSec int64, payload *model.ReminderPayload) error
	Pause(ctx context.Context, userID uuid.UUID, day, stepIndex int) error
	Resume(ctx context.Context, userID uuid.UUID, day, stepIndex int, remainingSec int64) error
	Reset(ctx context.Context, userID uuid.UUID, day, stepIndex int) error
}

type service struct {
	reminders repository.ReminderRepository
	subs      repository.SubscriptionRepository
	queue     jobqueue.Queue
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	reminders repository.ReminderRepository,
	subs repository.SubscriptionRepository,
	queue jobqueue.Queue,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	return &service{
		reminders: reminders,
		subs:      subs,
		queue:     queue,
		logger:    log.WithComponent("scheduler"),
		metrics:   m,
	}
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, day, stepIndex int, durationSec int64, payload *model.ReminderPayload) error {
	if userID == uuid.Nil {
		return apperrors.BadRequest("user ID is required", nil)
	}
	if durationSec <= 0 {
		return apperrors.BadRequest("duration must be positive", nil)
	}
	if payload == nil {
		payload = &model.ReminderPayload{}
	}
	return s.create(ctx, userID, day, stepIndex, durationSec, payload)
}

func (s *service) create(ctx context.Context, userID uuid.UUID, day, stepIndex int, durationSec int64, payload *model.ReminderPayload) error {
	rec := &model.ReminderRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Day:       day,
		StepIndex: stepIndex,
		EndTs:     time.Now().Unix() + durationSec,
		StepTitle: payload.StepTitle,
		URL:       payload.URL,
	}
	rec.Subscription = s.snapshotSubscriptions(ctx, userID)

	if err := s.reminders.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to create reminder record: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RemindersScheduled.Inc()
	}

	// Enqueue failure after the row exists is reportable but not
	// fatal: the record stays without a job handle, so it never fires.
	// Fine for the common case where the client completes in time.
	body, _ := json.Marshal(model.JobPayload{RecordID: rec.ID})
	jobID, err := s.queue.Enqueue(ctx, time.Duration(durationSec)*time.Second, body)
	if err != nil {
		s.reportScheduleFailure(err, rec.ID)
		return nil
	}

	if err := s.reminders.SetJob(ctx, rec.ID, jobID); err != nil {
		// The job will fire but fails the consumer's fence against the
		// record's (null) job handle, so it degrades to a no-op.
		s.reportScheduleFailure(err, rec.ID)
	}
	return nil
}

func (s *service) Pause(ctx context.Context, userID uuid.UUID, day, stepIndex int) error {
	rec, err := s.reminders.FindCurrent(ctx, userID, day, stepIndex)
	if apperrors.IsNotFound(err) {
		// Already completed or reset; pausing nothing is fine.
		s.logger.Debug("pause: no active reminder", "user_id", userID, "day", day, "step_index", stepIndex)
		return nil
	}
	if err != nil {
		return err
	}

	s.cancelJob(ctx, rec.JobID)

	ok, err := s.reminders.MarkPaused(ctx, rec.ID, rec.JobID)
	if err != nil {
		return err
	}
	if !ok {
		// A concurrent resume re-pointed the record between our read
		// and the guarded update; its state wins.
		s.logger.Debug("pause: lost race with concurrent update", "record_id", rec.ID)
		return nil
	}

	if s.metrics != nil {
		s.metrics.RemindersPaused.Inc()
	}
	return nil
}

func (s *service) Resume(ctx context.Context, userID uuid.UUID, day, stepIndex int, remainingSec int64) error {
	rec, err := s.reminders.FindCurrent(ctx, userID, day, stepIndex)
	if apperrors.IsNotFound(err) {
		if remainingSec <= 0 {
			return nil
		}
		// The record is gone (client reset, or server already resolved
		// it); synthesize a fresh one from the client's live countdown.
		return s.create(ctx, userID, day, stepIndex, remainingSec, &model.ReminderPayload{})
	}
	if err != nil {
		return err
	}

	if remainingSec <= 0 {
		// Deadline already passed; deleting is equivalent to firing
		// with nothing left to do. Never schedule a non-positive delay.
		s.cancelJob(ctx, rec.JobID)
		return s.reminders.Delete(ctx, rec.ID)
	}

	// The client's displayed remaining wins over whatever end_ts the
	// record carries: the client was the thing actually counting down.
	s.cancelJob(ctx, rec.JobID)
	newEndTs := time.Now().Unix() + remainingSec

	body, _ := json.Marshal(model.JobPayload{RecordID: rec.ID})
	jobID, err := s.queue.Enqueue(ctx, time.Duration(remainingSec)*time.Second, body)
	if err != nil {
		s.reportScheduleFailure(err, rec.ID)
		return nil
	}

	if err := s.reminders.Reschedule(ctx, rec.ID, newEndTs, jobID); err != nil {
		if apperrors.IsNotFound(err) {
			// Record vanished underneath us (reset raced the resume);
			// the stale job is fenced off at fire time.
			return nil
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RemindersResumed.Inc()
	}
	return nil
}

func (s *service) Reset(ctx context.Context, userID uuid.UUID, day, stepIndex int) error {
	rec, err := s.reminders.FindCurrent(ctx, userID, day, stepIndex)
	if apperrors.IsNotFound(err) {
		s.logger.Debug("reset: no active reminder", "user_id", userID, "day", day, "step_index", stepIndex)
		return nil
	}
	if err != nil {
		return err
	}

	s.cancelJob(ctx, rec.JobID)

	if err := s.reminders.Delete(ctx, rec.ID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RemindersReset.Inc()
	}
	return nil
}

// cancelJob is best-effort: a job the queue has already dequeued cannot
// be cancelled, and the consumer's fence handles that window.
func (s *service) cancelJob(ctx context.Context, jobID *string) {
	if jobID == nil {
		return
	}
	if err := s.queue.Cancel(ctx, *jobID); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
		if s.metrics != nil {
			s.metrics.CancelFailures.Inc()
		}
		s.logger.Warn("failed to cancel scheduled job", "job_id", *jobID, "error", err.Error())
	}
}

// snapshotSubscriptions records the endpoints known at creation time.
// The snapshot is audit-only; the consumer re-resolves live endpoints
// at fire time.
func (s *service) snapshotSubscriptions(ctx context.Context, userID uuid.UUID) json.RawMessage {
	subs, err := s.subs.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to snapshot subscriptions", "user_id", userID, "error", err.Error())
		return nil
	}
	if len(subs) == 0 {
		return nil
	}
	raw, err := json.Marshal(subs)
	if err != nil {
		return nil
	}
	return raw
}

func (s *service) reportScheduleFailure(err error, recordID uuid.UUID) {
	if s.metrics != nil {
		s.metrics.ScheduleFailures.Inc()
	}
	s.logger.Error(err, "reminder left without a scheduled job", "record_id", recordID)
}
