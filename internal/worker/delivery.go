package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/newsletter-api/internal/email"
	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
	"github.com/jwalitptl/newsletter-api/pkg/metrics"
)

// DeliveryWorkerConfig configures one worker loop instance.
type DeliveryWorkerConfig struct {
	PollInterval time.Duration
	// MaxAttempts bounds transient retries per task; once exhausted the
	// task is dropped like a permanent failure.
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DeliveryWorker drains the delivery queue: it claims one task at a
// time under a skip-locked row lock, sends the email while the lock is
// held, and retires or requeues the task in the same transaction. Any
// number of instances can run against the same database.
type DeliveryWorker struct {
	repo    repository.DeliveryRepository
	mailer  email.Service
	config  DeliveryWorkerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDeliveryWorker(
	repo repository.DeliveryRepository,
	mailer email.Service,
	config DeliveryWorkerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *DeliveryWorker {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		panic("MaxAttempts must be greater than 0")
	}
	if config.RetryBackoff <= 0 {
		panic("RetryBackoff must be greater than 0")
	}

	return &DeliveryWorker{
		repo:    repo,
		mailer:  mailer,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info("starting delivery worker")

	for {
		processed, err := w.processOne(ctx)
		if err != nil {
			w.logger.Error(err, "failed to process delivery task")
		}
		if processed && err == nil {
			// Keep draining while there is work.
			continue
		}

		if count, err := w.repo.PendingCount(ctx); err == nil {
			w.metrics.QueueDepth.Set(float64(count))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("shutting down delivery worker")
			return
		case <-time.After(w.config.PollInterval):
		}
	}
}

// processOne claims and handles a single task. It reports false when
// the queue had nothing claimable.
func (w *DeliveryWorker) processOne(ctx context.Context) (bool, error) {
	tx, err := w.repo.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	claimTimer := prometheus.NewTimer(w.metrics.ClaimLatency)
	task, err := w.repo.Claim(ctx, tx)
	claimTimer.ObserveDuration()
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sendTimer := prometheus.NewTimer(w.metrics.DeliveryLatency)
	sendErr := w.mailer.Send(ctx, task.Email, task.Title, task.HTMLContent, task.TextContent)
	sendTimer.ObserveDuration()

	switch {
	case sendErr == nil:
		if err := w.repo.Delete(ctx, tx, task.IssueID, task.SubscriberID); err != nil {
			return true, err
		}
		if err := tx.Commit(); err != nil {
			return true, err
		}
		committed = true
		w.metrics.TasksDelivered.Inc()
		w.logger.Info("issue delivered",
			"issue_id", task.IssueID.String(),
			"subscriber_id", task.SubscriberID.String())
		return true, nil

	case email.IsPermanent(sendErr), task.Attempts+1 >= w.config.MaxAttempts:
		reason := "permanent send failure"
		if !email.IsPermanent(sendErr) {
			reason = "retry budget exhausted"
		}
		failure := &model.DeliveryFailure{
			IssueID:      task.IssueID,
			SubscriberID: task.SubscriberID,
			Email:        task.Email,
			Reason:       sendErr.Error(),
			Attempts:     task.Attempts + 1,
		}
		if err := w.repo.RecordFailure(ctx, tx, failure); err != nil {
			return true, err
		}
		if err := w.repo.Delete(ctx, tx, task.IssueID, task.SubscriberID); err != nil {
			return true, err
		}
		if err := tx.Commit(); err != nil {
			return true, err
		}
		committed = true
		w.metrics.TasksFailed.WithLabelValues(reason).Inc()
		w.logger.Error(sendErr, "delivery dropped",
			"issue_id", task.IssueID.String(),
			"subscriber_id", task.SubscriberID.String(),
			"reason", reason,
			"attempts", task.Attempts+1)
		return true, nil

	default:
		// Transient failure: leave the row pending with a backoff so a
		// later poll, by any worker, retries it.
		attempts := task.Attempts + 1
		retryAt := time.Now().Add(w.config.RetryBackoff * time.Duration(attempts))
		if err := w.repo.Requeue(ctx, tx, task.IssueID, task.SubscriberID, attempts, retryAt); err != nil {
			return true, err
		}
		if err := tx.Commit(); err != nil {
			return true, err
		}
		committed = true
		w.metrics.TasksRequeued.Inc()
		w.logger.Warn("delivery requeued after transient failure",
			"issue_id", task.IssueID.String(),
			"subscriber_id", task.SubscriberID.String(),
			"attempts", attempts)
		return true, nil
	}
}
