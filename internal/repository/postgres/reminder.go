package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/trainer-api/pkg/errors"

	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/repository"
)

type reminderRepository struct {
	*BaseRepository
}

func NewReminderRepository(base *BaseRepository) repository.ReminderRepository {
	return &reminderRepository{BaseRepository: base}
}

func (r *reminderRepository) Create(ctx context.Context, rec *model.ReminderRecord) error {
	query := `
		INSERT INTO step_reminders (
			id, user_id, day, step_index, end_ts, job_id,
			paused, sent, step_title, url, subscription,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Day,
		rec.StepIndex,
		rec.EndTs,
		rec.JobID,
		rec.Paused,
		rec.Sent,
		rec.StepTitle,
		rec.URL,
		rec.Subscription,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *reminderRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReminderRecord, error) {
	query := `
		SELECT id, user_id, day, step_index, end_ts, job_id,
		       paused, sent, step_title, url, subscription,
		       created_at, updated_at
		FROM step_reminders
		WHERE id = $1
	`
	var rec model.ReminderRecord
	err := r.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("reminder", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return &rec, nil
}

func (r *reminderRepository) FindCurrent(ctx context.Context, userID uuid.UUID, day, stepIndex int) (*model.ReminderRecord, error) {
	// Retried creations can leave duplicate unsent rows for a key; the
	// newest one wins.
	query := `
		SELECT id, user_id, day, step_index, end_ts, job_id,
		       paused, sent, step_title, url, subscription,
		       created_at, updated_at
		FROM step_reminders
		WHERE user_id = $1 AND day = $2 AND step_index = $3 AND sent = false
		ORDER BY created_at DESC
		LIMIT 1
	`
	var rec model.ReminderRecord
	err := r.db.GetContext(ctx, &rec, query, userID, day, stepIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("reminder", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current reminder: %w", err)
	}
	return &rec, nil
}

func (r *reminderRepository) SetJob(ctx context.Context, id uuid.UUID, jobID string) error {
	query := `
		UPDATE step_reminders
		SET job_id = $1, paused = false, updated_at = $2
		WHERE id = $3 AND sent = false
	`
	result, err := r.db.ExecContext(ctx, query, jobID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set job on reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("reminder", nil)
	}
	return nil
}

func (r *reminderRepository) MarkPaused(ctx context.Context, id uuid.UUID, prevJobID *string) (bool, error) {
	// Guard on the job handle we just cancelled so a concurrent resume
	// that re-pointed the record is not clobbered.
	query := `
		UPDATE step_reminders
		SET job_id = NULL, paused = true, updated_at = $1
		WHERE id = $2 AND sent = false AND job_id IS NOT DISTINCT FROM $3
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id, prevJobID)
	if err != nil {
		return false, fmt.Errorf("failed to pause reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *reminderRepository) Reschedule(ctx context.Context, id uuid.UUID, endTs int64, jobID string) error {
	query := `
		UPDATE step_reminders
		SET end_ts = $1, job_id = $2, paused = false, updated_at = $3
		WHERE id = $4 AND sent = false
	`
	result, err := r.db.ExecContext(ctx, query, endTs, jobID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("reminder", nil)
	}
	return nil
}

func (r *reminderRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE step_reminders
		SET sent = true, job_id = NULL, updated_at = $1
		WHERE id = $2 AND sent = false
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("reminder", nil)
	}
	return nil
}

func (r *reminderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM step_reminders
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}
