package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels the reminder pipeline publishes on.
const (
	ChannelReminderFired  = "reminder.fired"
	ChannelReminderFailed = "reminder.failed"
)

// ReminderEvent is the message published when a reminder fires or every
// delivery attempt for it fails.
type ReminderEvent struct {
	RecordID  string `json:"record_id"`
	UserID    string `json:"user_id"`
	Day       int    `json:"day"`
	StepIndex int    `json:"step_index"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Removed   int    `json:"removed"`
}
