package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
)

type issueRepository struct {
	BaseRepository
}

func NewIssueRepository(base BaseRepository) repository.IssueRepository {
	return &issueRepository{base}
}

func (r *issueRepository) Insert(ctx context.Context, tx *sqlx.Tx, issue *model.NewsletterIssue) error {
	query := `
		INSERT INTO newsletter_issues (id, title, html_content, text_content, published_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		issue.ID,
		issue.Title,
		issue.HTMLContent,
		issue.TextContent,
		issue.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert newsletter issue: %w", mapError(err))
	}
	return nil
}

func (r *issueRepository) Get(ctx context.Context, id uuid.UUID) (*model.NewsletterIssue, error) {
	query := `
		SELECT id, title, html_content, text_content, published_at
		FROM newsletter_issues
		WHERE id = $1
	`
	var issue model.NewsletterIssue
	if err := r.GetDB().GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}
