package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReminderRecord is one pending or fired deferred notification for a
// training step. The most-recently-created unsent row for a
// (user_id, day, step_index) key is the authoritative one; older unsent
// duplicates are ignored by every operation.
type ReminderRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Day       int       `db:"day" json:"day"`
	StepIndex int       `db:"step_index" json:"step_index"`

	// EndTs is the absolute unix-seconds deadline. It is the single
	// source of truth for when the reminder fires; queue delays are
	// always derived from it.
	EndTs  int64   `db:"end_ts" json:"end_ts"`
	JobID  *string `db:"job_id" json:"job_id,omitempty"`
	Paused bool    `db:"paused" json:"paused"`
	Sent   bool    `db:"sent" json:"sent"`

	StepTitle string `db:"step_title" json:"step_title"`
	URL       string `db:"url" json:"url"`

	// Subscription is the endpoint snapshot taken at creation. The
	// consumer re-resolves live endpoints at fire time; this is kept
	// for audit only and may be stale.
	Subscription json.RawMessage `db:"subscription" json:"subscription,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the seconds left until the deadline, never negative.
func (r *ReminderRecord) Remaining(now time.Time) int64 {
	rem := r.EndTs - now.Unix()
	if rem < 0 {
		return 0
	}
	return rem
}

// ReminderPayload is the push payload content carried by a record.
type ReminderPayload struct {
	StepTitle string `json:"step_title"`
	URL       string `json:"url"`
}

// JobPayload is what a scheduled job carries: just the record id. The
// queue hands the job handle to the consumer separately, which fences
// it against the record's current job_id.
type JobPayload struct {
	RecordID uuid.UUID `json:"record_id"`
}

// PushMessage is the JSON body handed to the push transport.
type PushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}
