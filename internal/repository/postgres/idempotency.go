package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
)

type idempotencyRepository struct {
	BaseRepository
}

func NewIdempotencyRepository(base BaseRepository) repository.IdempotencyRepository {
	return &idempotencyRepository{base}
}

// TryStart inserts the in-progress placeholder inside the caller's
// transaction. The primary key is the only synchronization: a concurrent
// insert for the same key blocks on the winner's row lock until the
// winner commits, after which ON CONFLICT DO NOTHING reports zero rows
// and the caller reads back the finalized record.
func (r *idempotencyRepository) TryStart(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_records (publisher_id, idempotency_key, state, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (publisher_id, idempotency_key) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, publisherID, key, model.IdempotencyStateInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to start idempotency record: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string) (*model.IdempotencyRecord, error) {
	query := `
		SELECT publisher_id, idempotency_key, state,
		       response_status_code, response_headers, response_body,
		       created_at, finalized_at
		FROM idempotency_records
		WHERE publisher_id = $1 AND idempotency_key = $2
	`
	var record model.IdempotencyRecord
	if err := tx.GetContext(ctx, &record, query, publisherID, key); err != nil {
		return nil, err
	}
	return &record, nil
}

// Finalize writes the real response into the placeholder as part of the
// same commit that creates the issue and tasks. Finalized records are
// never updated again.
func (r *idempotencyRepository) Finalize(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string, resp *model.SavedResponse) error {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode response headers: %w", err)
	}

	query := `
		UPDATE idempotency_records
		SET state = $3,
			response_status_code = $4,
			response_headers = $5,
			response_body = $6,
			finalized_at = NOW()
		WHERE publisher_id = $1 AND idempotency_key = $2 AND state = $7
	`
	result, err := tx.ExecContext(ctx, query,
		publisherID,
		key,
		model.IdempotencyStateCompleted,
		resp.StatusCode,
		headers,
		[]byte(resp.Body),
		model.IdempotencyStateInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize idempotency record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("idempotency record missing or already finalized")
	}
	return nil
}
