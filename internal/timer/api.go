package timer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/trainer-api/internal/model"
)

// APIClient is the HTTP SchedulerClient talking to the trainer API.
type APIClient struct {
	baseURL string
	userID  uuid.UUID
	client  *http.Client
}

func NewAPIClient(baseURL string, userID uuid.UUID) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		userID:  userID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type reminderRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	Day          int       `json:"day"`
	StepIndex    int       `json:"step_index"`
	DurationSec  int64     `json:"duration_sec,omitempty"`
	RemainingSec int64     `json:"remaining_sec"`
	StepTitle    string    `json:"step_title,omitempty"`
	URL          string    `json:"url,omitempty"`
}

func (c *APIClient) CreateReminder(ctx context.Context, key Key, durationSec int64, payload *model.ReminderPayload) error {
	req := reminderRequest{
		UserID:      c.userID,
		Day:         key.Day,
		StepIndex:   key.StepIndex,
		DurationSec: durationSec,
	}
	if payload != nil {
		req.StepTitle = payload.StepTitle
		req.URL = payload.URL
	}
	return c.post(ctx, "/api/v1/reminders", req)
}

func (c *APIClient) PauseReminder(ctx context.Context, key Key) error {
	return c.post(ctx, "/api/v1/reminders/pause", reminderRequest{
		UserID:    c.userID,
		Day:       key.Day,
		StepIndex: key.StepIndex,
	})
}

func (c *APIClient) ResumeReminder(ctx context.Context, key Key, remainingSec int64) error {
	return c.post(ctx, "/api/v1/reminders/resume", reminderRequest{
		UserID:       c.userID,
		Day:          key.Day,
		StepIndex:    key.StepIndex,
		RemainingSec: remainingSec,
	})
}

func (c *APIClient) ResetReminder(ctx context.Context, key Key) error {
	return c.post(ctx, "/api/v1/reminders/reset", reminderRequest{
		UserID:    c.userID,
		Day:       key.Day,
		StepIndex: key.StepIndex,
	})
}

func (c *APIClient) post(ctx context.Context, path string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("scheduler returned status %d", resp.StatusCode)
	}
	return nil
}
