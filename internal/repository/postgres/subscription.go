package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/repository"
)

type subscriptionRepository struct {
	*BaseRepository
}

func NewSubscriptionRepository(base *BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{BaseRepository: base}
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *model.PushSubscription) error {
	// A browser re-subscribing reuses its endpoint URL; refresh the
	// keys instead of erroring on the unique constraint.
	query := `
		INSERT INTO push_subscriptions (
			id, user_id, endpoint, p256dh, auth, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth
	`
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`
	var subs []*model.PushSubscription
	if err := r.db.SelectContext(ctx, &subs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	query := `
		DELETE FROM push_subscriptions
		WHERE endpoint = $1
	`
	_, err := r.db.ExecContext(ctx, query, endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
