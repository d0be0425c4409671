package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
)

// ErrDuplicateKey is returned when an insert violates a uniqueness
// constraint. The postgres implementations map driver errors to it so
// services can retry ledger races without importing the driver.
var ErrDuplicateKey = errors.New("duplicate key")

// TxManager scopes work to a single database transaction with rollback
// on every failure path.
type TxManager interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// All repository interfaces in one file
type (
	// SubscriberRepository handles subscriber sign-up and confirmation state.
	SubscriberRepository interface {
		CreatePending(ctx context.Context, tx *sqlx.Tx, sub *model.Subscriber) error
		PendingTokenByEmail(ctx context.Context, tx *sqlx.Tx, email string) (string, error)
		StoreToken(ctx context.Context, tx *sqlx.Tx, token string, subscriberID uuid.UUID) error
		SubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error)
		Confirm(ctx context.Context, id uuid.UUID) error
		Get(ctx context.Context, id uuid.UUID) (*model.Subscriber, error)
	}

	// IssueRepository persists newsletter issues.
	IssueRepository interface {
		Insert(ctx context.Context, tx *sqlx.Tx, issue *model.NewsletterIssue) error
		Get(ctx context.Context, id uuid.UUID) (*model.NewsletterIssue, error)
	}

	// DeliveryRepository is the transactional outbox of pending
	// (issue, subscriber) delivery tasks.
	DeliveryRepository interface {
		TxManager
		// EnqueueForConfirmed snapshots the confirmed subscriber set at
		// call time, one task per subscriber, inside tx.
		EnqueueForConfirmed(ctx context.Context, tx *sqlx.Tx, issueID uuid.UUID) (int64, error)
		// Claim locks one pending task with skip-locked semantics and
		// returns it joined with the data needed to deliver it.
		// Returns sql.ErrNoRows when nothing is claimable.
		Claim(ctx context.Context, tx *sqlx.Tx) (*model.ClaimedTask, error)
		Delete(ctx context.Context, tx *sqlx.Tx, issueID, subscriberID uuid.UUID) error
		Requeue(ctx context.Context, tx *sqlx.Tx, issueID, subscriberID uuid.UUID, attempts int, retryAt time.Time) error
		RecordFailure(ctx context.Context, tx *sqlx.Tx, failure *model.DeliveryFailure) error
		PendingCount(ctx context.Context) (int64, error)
	}

	// IdempotencyRepository is the two-phase submission ledger.
	IdempotencyRepository interface {
		// TryStart inserts the placeholder row; false means the key is
		// already held (finalized or in flight).
		TryStart(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string) (bool, error)
		Get(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string) (*model.IdempotencyRecord, error)
		Finalize(ctx context.Context, tx *sqlx.Tx, publisherID uuid.UUID, key string, resp *model.SavedResponse) error
	}

	// PublisherRepository looks up publisher credentials.
	PublisherRepository interface {
		GetByUsername(ctx context.Context, username string) (*model.Publisher, error)
		Create(ctx context.Context, publisher *model.Publisher) error
	}
)
