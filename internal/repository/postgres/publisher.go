package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
)

type publisherRepository struct {
	BaseRepository
}

func NewPublisherRepository(base BaseRepository) repository.PublisherRepository {
	return &publisherRepository{base}
}

func (r *publisherRepository) GetByUsername(ctx context.Context, username string) (*model.Publisher, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM publishers
		WHERE username = $1
	`
	var publisher model.Publisher
	if err := r.GetDB().GetContext(ctx, &publisher, query, username); err != nil {
		return nil, err
	}
	return &publisher, nil
}

func (r *publisherRepository) Create(ctx context.Context, publisher *model.Publisher) error {
	query := `
		INSERT INTO publishers (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		publisher.ID,
		publisher.Username,
		publisher.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", mapError(err))
	}
	return nil
}
