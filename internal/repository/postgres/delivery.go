package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
)

type deliveryRepository struct {
	BaseRepository
}

func NewDeliveryRepository(base BaseRepository) repository.DeliveryRepository {
	return &deliveryRepository{base}
}

// EnqueueForConfirmed creates one delivery task per confirmed subscriber
// as of this statement. Subscribers confirming later are not enrolled.
func (r *deliveryRepository) EnqueueForConfirmed(ctx context.Context, tx *sqlx.Tx, issueID uuid.UUID) (int64, error) {
	query := `
		INSERT INTO delivery_queue (issue_id, subscriber_id, attempts, created_at)
		SELECT $1, id, 0, NOW()
		FROM subscriptions
		WHERE status = $2
	`
	result, err := tx.ExecContext(ctx, query, issueID, model.SubscriberStatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue delivery tasks: %w", mapError(err))
	}
	return result.RowsAffected()
}

// Claim locks one pending task for the duration of tx. Contending
// workers skip locked rows instead of blocking on them.
func (r *deliveryRepository) Claim(ctx context.Context, tx *sqlx.Tx) (*model.ClaimedTask, error) {
	query := `
		SELECT dq.issue_id, dq.subscriber_id, dq.attempts,
		       s.email, i.title, i.html_content, i.text_content
		FROM delivery_queue dq
		JOIN subscriptions s ON s.id = dq.subscriber_id
		JOIN newsletter_issues i ON i.id = dq.issue_id
		WHERE dq.retry_at IS NULL OR dq.retry_at <= NOW()
		ORDER BY dq.created_at ASC
		FOR UPDATE OF dq SKIP LOCKED
		LIMIT 1
	`
	var task model.ClaimedTask
	if err := tx.GetContext(ctx, &task, query); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *deliveryRepository) Delete(ctx context.Context, tx *sqlx.Tx, issueID, subscriberID uuid.UUID) error {
	query := `
		DELETE FROM delivery_queue
		WHERE issue_id = $1 AND subscriber_id = $2
	`
	if _, err := tx.ExecContext(ctx, query, issueID, subscriberID); err != nil {
		return fmt.Errorf("failed to delete delivery task: %w", err)
	}
	return nil
}

// Requeue keeps the task pending after a transient failure, recording
// the attempt and deferring the next claim until retryAt.
func (r *deliveryRepository) Requeue(ctx context.Context, tx *sqlx.Tx, issueID, subscriberID uuid.UUID, attempts int, retryAt time.Time) error {
	query := `
		UPDATE delivery_queue
		SET attempts = $3, retry_at = $4
		WHERE issue_id = $1 AND subscriber_id = $2
	`
	if _, err := tx.ExecContext(ctx, query, issueID, subscriberID, attempts, retryAt); err != nil {
		return fmt.Errorf("failed to requeue delivery task: %w", err)
	}
	return nil
}

func (r *deliveryRepository) RecordFailure(ctx context.Context, tx *sqlx.Tx, failure *model.DeliveryFailure) error {
	query := `
		INSERT INTO delivery_failures (issue_id, subscriber_id, email, reason, attempts, failed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := tx.ExecContext(ctx, query,
		failure.IssueID,
		failure.SubscriberID,
		failure.Email,
		failure.Reason,
		failure.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", mapError(err))
	}
	return nil
}

func (r *deliveryRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.GetDB().GetContext(ctx, &count, `SELECT COUNT(*) FROM delivery_queue`)
	return count, err
}
