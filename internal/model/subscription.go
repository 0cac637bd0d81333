package model

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is one registered web-push endpoint for a user. A
// user may hold several (one per browser/device); delivery fans out to
// all of them.
type PushSubscription struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	P256dh    string    `db:"p256dh" json:"p256dh"`
	Auth      string    `db:"auth" json:"auth"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
