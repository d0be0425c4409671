package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/newsletter-api/internal/model"
)

func TestCreatePendingInsertsSubscriber(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepository(NewBaseRepository(db))

	sub := &model.Subscriber{
		ID:           uuid.New(),
		Email:        "ursula@example.com",
		Name:         "Ursula Le Guin",
		Status:       model.SubscriberStatusPending,
		SubscribedAt: time.Now().UTC(),
	}
	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(sub.ID, sub.Email, sub.Name, model.SubscriberStatusPending, sub.SubscribedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreatePending(context.Background(), tx, sub)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingTokenByEmailReturnsToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepository(NewBaseRepository(db))

	tx := beginTx(t, db, mock)
	mock.ExpectQuery("SELECT subscription_token").
		WithArgs("ursula@example.com", model.SubscriberStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"subscription_token"}).AddRow("tok"))

	token, err := repo.PendingTokenByEmail(context.Background(), tx, "ursula@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestPendingTokenByEmailReturnsEmptyWhenNone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepository(NewBaseRepository(db))

	tx := beginTx(t, db, mock)
	mock.ExpectQuery("SELECT subscription_token").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_token"}))

	token, err := repo.PendingTokenByEmail(context.Background(), tx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSubscriberIDByToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepository(NewBaseRepository(db))

	id := uuid.New()
	mock.ExpectQuery("SELECT subscriber_id").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow(id.String()))

	got, err := repo.SubscriberIDByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestConfirmUpdatesStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepository(NewBaseRepository(db))

	id := uuid.New()
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(model.SubscriberStatusConfirmed, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Confirm(context.Background(), id)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
