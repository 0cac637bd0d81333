// Package worker consumes due reminder jobs: load the record, resolve
// the user's live endpoints, fan delivery out to all of them, remove
// endpoints the push service reports permanently gone, and mark the
// record sent when at least one attempt lands.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/jwalitptl/trainer-api/pkg/errors"
	"github.com/jwalitptl/trainer-api/pkg/logger"
	"github.com/jwalitptl/trainer-api/pkg/messaging"
	"github.com/jwalitptl/trainer-api/pkg/metrics"
	"github.com/jwalitptl/trainer-api/pkg/push"

	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/repository"
)

type Consumer struct {
	reminders repository.ReminderRepository
	subs      repository.SubscriptionRepository
	sender    push.Sender
	broker    messaging.Broker
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewConsumer(
	reminders repository.ReminderRepository,
	subs repository.SubscriptionRepository,
	sender push.Sender,
	broker messaging.Broker,
	log *logger.Logger,
	m *metrics.Metrics,
) *Consumer {
	return &Consumer{
		reminders: reminders,
		subs:      subs,
		sender:    sender,
		broker:    broker,
		logger:    log.WithComponent("reminder-consumer"),
		metrics:   m,
	}
}

// HandleReminderDue is the jobqueue handler. "No record", "stale job"
// and "all deliveries failed" are all completed work from the queue's
// point of view; retrying would not change the outcome.
func (c *Consumer) HandleReminderDue(ctx context.Context, jobID string, payload []byte) error {
	var job model.JobPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}

	rec, err := c.reminders.Get(ctx, job.RecordID)
	if apperrors.IsNotFound(err) {
		// A reset raced the firing and won; nothing to deliver.
		c.logger.Debug("reminder already gone", "record_id", job.RecordID)
		return nil
	}
	if err != nil {
		return err
	}

	if rec.Sent {
		return nil
	}

	// Fence: a pause or resume that could not cancel this job re-pointed
	// or cleared the record's job handle. A mismatch means we are the
	// stale firing and must stand down.
	if rec.JobID == nil || *rec.JobID != jobID {
		c.logger.Debug("stale job fenced off",
			"record_id", rec.ID, "job_id", jobID)
		return nil
	}

	subs, err := c.subs.ListForUser(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve endpoints: %w", err)
	}

	delivered, failed, removed := c.deliverAll(ctx, rec, subs)

	if delivered == 0 {
		if c.metrics != nil {
			c.metrics.RemindersOrphaned.Inc()
		}
		c.logger.Warn("every delivery attempt failed, reminder left unsent",
			"record_id", rec.ID,
			"endpoints", len(subs),
			"failed", failed)
		c.publish(ctx, messaging.ChannelReminderFailed, rec, delivered, failed, removed)
		return nil
	}

	if err := c.reminders.MarkSent(ctx, rec.ID); err != nil && !apperrors.IsNotFound(err) {
		c.logger.Error(err, "failed to mark reminder sent", "record_id", rec.ID)
	}

	if c.metrics != nil {
		c.metrics.RemindersSent.Inc()
	}
	c.logger.Info("reminder delivered",
		"record_id", rec.ID,
		"delivered", delivered,
		"failed", failed,
		"removed", removed)
	c.publish(ctx, messaging.ChannelReminderFired, rec, delivered, failed, removed)
	return nil
}

// deliverAll attempts delivery to every endpoint concurrently; one
// endpoint's failure never blocks the others.
func (c *Consumer) deliverAll(ctx context.Context, rec *model.ReminderRecord, subs []*model.PushSubscription) (delivered, failed, removed int) {
	msg := &model.PushMessage{
		Title: rec.StepTitle,
		Body:  "Time's up! This step is complete.",
		URL:   rec.URL,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *model.PushSubscription) {
			defer wg.Done()

			outcome := c.sender.Send(ctx, sub, msg)
			if c.metrics != nil {
				c.metrics.Deliveries.WithLabelValues(outcome.String()).Inc()
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case push.Delivered:
				delivered++
			case push.Gone:
				failed++
				if err := c.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					c.logger.Error(err, "failed to remove dead endpoint", "endpoint", sub.Endpoint)
				} else {
					removed++
					if c.metrics != nil {
						c.metrics.EndpointsRemoved.Inc()
					}
					c.logger.Info("removed dead push endpoint", "endpoint", sub.Endpoint)
				}
			default:
				// Transient; the endpoint self-corrects or fails again
				// next time. No retry from here.
				failed++
			}
		}(sub)
	}
	wg.Wait()
	return delivered, failed, removed
}

func (c *Consumer) publish(ctx context.Context, channel string, rec *model.ReminderRecord, delivered, failed, removed int) {
	if c.broker == nil {
		return
	}
	evt := &messaging.ReminderEvent{
		RecordID:  rec.ID.String(),
		UserID:    rec.UserID.String(),
		Day:       rec.Day,
		StepIndex: rec.StepIndex,
		Delivered: delivered,
		Failed:    failed,
		Removed:   removed,
	}
	if err := c.broker.Publish(ctx, channel, evt); err != nil {
		c.logger.Warn("failed to publish reminder event", "channel", channel, "error", err.Error())
	}
}
