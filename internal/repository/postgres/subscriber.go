package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
)

type subscriberRepository struct {
	BaseRepository
}

func NewSubscriberRepository(base BaseRepository) repository.SubscriberRepository {
	return &subscriberRepository{base}
}

func (r *subscriberRepository) CreatePending(ctx context.Context, tx *sqlx.Tx, sub *model.Subscriber) error {
	query := `
		INSERT INTO subscriptions (id, email, name, status, subscribed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		sub.ID,
		sub.Email,
		sub.Name,
		model.SubscriberStatusPending,
		sub.SubscribedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber: %w", mapError(err))
	}
	return nil
}

// PendingTokenByEmail returns the stored confirmation token for an
// existing pending subscription, or "" when there is none.
func (r *subscriberRepository) PendingTokenByEmail(ctx context.Context, tx *sqlx.Tx, email string) (string, error) {
	query := `
		SELECT subscription_token
		FROM subscription_tokens
		JOIN subscriptions ON subscriptions.id = subscription_tokens.subscriber_id
		WHERE subscriptions.email = $1
		AND subscriptions.status = $2
	`
	var token string
	err := tx.GetContext(ctx, &token, query, email, model.SubscriberStatusPending)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up pending token: %w", err)
	}
	return token, nil
}

func (r *subscriberRepository) StoreToken(ctx context.Context, tx *sqlx.Tx, token string, subscriberID uuid.UUID) error {
	query := `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := tx.ExecContext(ctx, query, token, subscriberID); err != nil {
		return fmt.Errorf("failed to store subscription token: %w", mapError(err))
	}
	return nil
}

func (r *subscriberRepository) SubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	query := `
		SELECT subscriber_id
		FROM subscription_tokens
		WHERE subscription_token = $1
	`
	var id uuid.UUID
	if err := r.GetDB().GetContext(ctx, &id, query, token); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Confirm flips the subscriber to confirmed. Already-confirmed
// subscribers are left untouched, making confirmation idempotent.
func (r *subscriberRepository) Confirm(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET status = $1
		WHERE id = $2
	`
	if _, err := r.GetDB().ExecContext(ctx, query, model.SubscriberStatusConfirmed, id); err != nil {
		return fmt.Errorf("failed to confirm subscriber: %w", err)
	}
	return nil
}

func (r *subscriberRepository) Get(ctx context.Context, id uuid.UUID) (*model.Subscriber, error) {
	query := `
		SELECT id, email, name, status, subscribed_at
		FROM subscriptions
		WHERE id = $1
	`
	var sub model.Subscriber
	if err := r.GetDB().GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}
