package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
	"github.com/jwalitptl/newsletter-api/pkg/metrics"
)

// errReplay aborts the submission transaction when the ledger already
// holds a finalized response for the key.
var errReplay = errors.New("idempotency key already finalized")

const raceRetryDelay = 100 * time.Millisecond

// Submission is a validated issue submission request.
type Submission struct {
	Title       string
	HTMLContent string
	TextContent string
}

// Outcome is the committed (or replayed) result of a submission. The
// response is stored in the ledger and replays are byte-identical.
type Outcome struct {
	IssueID  uuid.UUID
	Response *model.SavedResponse
	Replayed bool
}

// Service accepts newsletter issues and fans them out to all confirmed
// subscribers exactly once per idempotency key.
type Service interface {
	Submit(ctx context.Context, publisherID uuid.UUID, key string, sub *Submission) (*Outcome, error)
}

type service struct {
	tx       repository.TxManager
	ledger   repository.IdempotencyRepository
	issues   repository.IssueRepository
	delivery repository.DeliveryRepository
	retries  int
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(
	tx repository.TxManager,
	ledger repository.IdempotencyRepository,
	issues repository.IssueRepository,
	delivery repository.DeliveryRepository,
	retries int,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) Service {
	if retries < 0 {
		retries = 0
	}
	return &service{
		tx:       tx,
		ledger:   ledger,
		issues:   issues,
		delivery: delivery,
		retries:  retries,
		logger:   logger,
		metrics:  metrics,
	}
}

// Submit commits the issue, its delivery tasks, and the finalized ledger
// entry in one transaction. A retried request with the same key returns
// the stored response without redoing any work. Losing a concurrent
// race for the key is retried a bounded number of times before
// surfacing a conflict.
func (s *service) Submit(ctx context.Context, publisherID uuid.UUID, key string, sub *Submission) (*Outcome, error) {
	if err := validate(key, sub); err != nil {
		return nil, err
	}

	attempts := 1 + s.retries
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(raceRetryDelay):
			}
		}

		outcome, err := s.submitOnce(ctx, publisherID, key, sub)
		if err == nil {
			if outcome.Replayed {
				s.metrics.SubmissionsReplayed.Inc()
			} else {
				s.metrics.SubmissionsAccepted.Inc()
			}
			return outcome, nil
		}
		if retryable(err) {
			s.logger.Warn("lost idempotency ledger race, retrying",
				"publisher_id", publisherID.String(), "attempt", attempt+1)
			continue
		}
		return nil, apperrors.Internal(err)
	}

	s.metrics.SubmissionConflicts.Inc()
	return nil, apperrors.Conflict("a submission with this idempotency key is already in progress", nil)
}

func (s *service) submitOnce(ctx context.Context, publisherID uuid.UUID, key string, sub *Submission) (*Outcome, error) {
	outcome := &Outcome{}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		started, err := s.ledger.TryStart(ctx, tx, publisherID, key)
		if err != nil {
			return err
		}

		if !started {
			record, err := s.ledger.Get(ctx, tx, publisherID, key)
			if err != nil {
				return err
			}
			saved, err := record.SavedResponse()
			if err != nil {
				// Placeholder with no response: a concurrent
				// submission holds the key.
				return err
			}
			outcome.Response = saved
			outcome.Replayed = true
			outcome.IssueID = issueIDFromBody(saved.Body)
			return errReplay
		}

		issue := &model.NewsletterIssue{
			ID:          uuid.New(),
			Title:       sub.Title,
			HTMLContent: sub.HTMLContent,
			TextContent: sub.TextContent,
			PublishedAt: time.Now().UTC(),
		}
		if err := s.issues.Insert(ctx, tx, issue); err != nil {
			return err
		}

		enqueued, err := s.delivery.EnqueueForConfirmed(ctx, tx, issue.ID)
		if err != nil {
			return err
		}

		response, err := acceptedResponse(issue.ID)
		if err != nil {
			return err
		}
		if err := s.ledger.Finalize(ctx, tx, publisherID, key, response); err != nil {
			return err
		}

		outcome.IssueID = issue.ID
		outcome.Response = response
		s.logger.Info("newsletter issue accepted",
			"issue_id", issue.ID.String(), "tasks_enqueued", enqueued)
		return nil
	})

	if err != nil && !errors.Is(err, errReplay) {
		return nil, err
	}
	return outcome, nil
}

// acceptedResponse builds the exact HTTP response the handler writes and
// the ledger stores. Replays serve these same bytes.
func acceptedResponse(issueID uuid.UUID) (*model.SavedResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"status": "success",
		"data":   map[string]string{"issue_id": issueID.String()},
	})
	if err != nil {
		return nil, err
	}
	return &model.SavedResponse{
		StatusCode: http.StatusCreated,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}, nil
}

// issueIDFromBody recovers the issue identifier from a stored response.
func issueIDFromBody(body json.RawMessage) uuid.UUID {
	var envelope struct {
		Data struct {
			IssueID string `json:"issue_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(envelope.Data.IssueID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func validate(key string, sub *Submission) error {
	if strings.TrimSpace(key) == "" {
		return apperrors.BadRequest("idempotency key must not be empty", nil)
	}
	if sub == nil || strings.TrimSpace(sub.Title) == "" {
		return apperrors.BadRequest("title must not be empty", nil)
	}
	if strings.TrimSpace(sub.HTMLContent) == "" {
		return apperrors.BadRequest("html content must not be empty", nil)
	}
	if strings.TrimSpace(sub.TextContent) == "" {
		return apperrors.BadRequest("text content must not be empty", nil)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, model.ErrIdempotencyInFlight) ||
		errors.Is(err, repository.ErrDuplicateKey)
}
