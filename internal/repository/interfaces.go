package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/trainer-api/internal/model"
)

// ReminderRepository is the durable record store for step reminders.
type ReminderRepository interface {
	Create(ctx context.Context, rec *model.ReminderRecord) error
	Get(ctx context.Context, id uuid.UUID) (*model.ReminderRecord, error)

	// FindCurrent returns the most-recently-created unsent record for
	// the key, or a not-found error when no such record exists.
	FindCurrent(ctx context.Context, userID uuid.UUID, day, stepIndex int) (*model.ReminderRecord, error)

	// SetJob stores the job handle for a freshly scheduled record.
	SetJob(ctx context.Context, id uuid.UUID, jobID string) error

	// MarkPaused clears the job handle and freezes the record,
	// conditioned on the record still carrying prevJobID. Returns
	// false when the guard did not match (lost a race).
	MarkPaused(ctx context.Context, id uuid.UUID, prevJobID *string) (bool, error)

	// Reschedule moves the deadline and attaches a new job handle,
	// clearing the paused flag.
	Reschedule(ctx context.Context, id uuid.UUID, endTs int64, jobID string) error

	MarkSent(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubscriptionRepository is the push endpoint registry.
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *model.PushSubscription) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
