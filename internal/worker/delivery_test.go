package worker

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/newsletter-api/internal/email"
	"github.com/jwalitptl/newsletter-api/internal/repository/postgres"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
	"github.com/jwalitptl/newsletter-api/pkg/metrics"
)

type recordedSend struct {
	to       string
	subject  string
	htmlBody string
	textBody string
}

type fakeMailer struct {
	err   error
	sends []recordedSend
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	f.sends = append(f.sends, recordedSend{to: to, subject: subject, htmlBody: htmlBody, textBody: textBody})
	return f.err
}

func newTestWorker(t *testing.T, mailer *fakeMailer, maxAttempts int) (*DeliveryWorker, sqlmock.Sqlmock, *metrics.Metrics) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := postgres.NewBaseRepository(sqlx.NewDb(db, "sqlmock"))
	repo := postgres.NewDeliveryRepository(base)

	m := metrics.New("test")
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	w := NewDeliveryWorker(repo, mailer, DeliveryWorkerConfig{
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  maxAttempts,
		RetryBackoff: time.Minute,
	}, log, m)
	return w, mock, m
}

func claimedRow(issueID, subscriberID uuid.UUID, attempts int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"issue_id", "subscriber_id", "attempts",
		"email", "title", "html_content", "text_content",
	}).AddRow(
		issueID.String(), subscriberID.String(), attempts,
		"ursula@example.com", "Issue #1", "<p>Body</p>", "Body",
	)
}

func TestProcessOneDeliversAndRetiresTask(t *testing.T) {
	mailer := &fakeMailer{}
	w, mock, m := newTestWorker(t, mailer, 3)

	issueID, subscriberID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(claimedRow(issueID, subscriberID, 0))
	mock.ExpectExec("DELETE FROM delivery_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	processed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, mailer.sends, 1)
	assert.Equal(t, "ursula@example.com", mailer.sends[0].to)
	assert.Equal(t, "Issue #1", mailer.sends[0].subject)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksDelivered))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOneReportsEmptyQueue(t *testing.T) {
	mailer := &fakeMailer{}
	w, mock, _ := newTestWorker(t, mailer, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(sqlmock.NewRows([]string{
			"issue_id", "subscriber_id", "attempts",
			"email", "title", "html_content", "text_content",
		}))
	mock.ExpectRollback()

	processed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, mailer.sends)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOneRequeuesTransientFailure(t *testing.T) {
	mailer := &fakeMailer{err: &email.TransientError{Err: fmt.Errorf("connection reset")}}
	w, mock, m := newTestWorker(t, mailer, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(claimedRow(uuid.New(), uuid.New(), 0))
	mock.ExpectExec("UPDATE delivery_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	processed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksRequeued))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOneDropsPermanentFailure(t *testing.T) {
	mailer := &fakeMailer{err: &email.PermanentError{Err: fmt.Errorf("recipient rejected")}}
	w, mock, m := newTestWorker(t, mailer, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(claimedRow(uuid.New(), uuid.New(), 0))
	mock.ExpectExec("INSERT INTO delivery_failures").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM delivery_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	processed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksFailed.WithLabelValues("permanent send failure")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOneDropsTaskAfterExhaustingRetries(t *testing.T) {
	mailer := &fakeMailer{err: &email.TransientError{Err: fmt.Errorf("timeout")}}
	w, mock, m := newTestWorker(t, mailer, 3)

	// Third attempt of a task that already failed twice.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(claimedRow(uuid.New(), uuid.New(), 2))
	mock.ExpectExec("INSERT INTO delivery_failures").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM delivery_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	processed, err := w.processOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksFailed.WithLabelValues("retry budget exhausted")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOneRollsBackWhenRetireFails(t *testing.T) {
	mailer := &fakeMailer{}
	w, mock, _ := newTestWorker(t, mailer, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
		WillReturnRows(claimedRow(uuid.New(), uuid.New(), 0))
	mock.ExpectExec("DELETE FROM delivery_queue").
		WillReturnError(fmt.Errorf("connection lost"))
	mock.ExpectRollback()

	processed, err := w.processOne(context.Background())
	require.Error(t, err)
	assert.True(t, processed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStopsOnContextCancel(t *testing.T) {
	mailer := &fakeMailer{}
	w, mock, _ := newTestWorker(t, mailer, 3)

	emptyClaim := func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT dq.issue_id, dq.subscriber_id, dq.attempts").
			WillReturnRows(sqlmock.NewRows([]string{
				"issue_id", "subscriber_id", "attempts",
				"email", "title", "html_content", "text_content",
			}))
		mock.ExpectRollback()
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}
	// Enough idle polls to cover the time until cancellation.
	for i := 0; i < 50; i++ {
		emptyClaim()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
