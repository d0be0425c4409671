package subscription

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/newsletter-api/internal/model"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
)

type fakeSubscriberRepo struct {
	pendingTokens map[string]string    // email -> token
	tokenOwners   map[string]uuid.UUID // token -> subscriber id
	created       []*model.Subscriber
	confirmed     []uuid.UUID
}

func newFakeSubscriberRepo() *fakeSubscriberRepo {
	return &fakeSubscriberRepo{
		pendingTokens: make(map[string]string),
		tokenOwners:   make(map[string]uuid.UUID),
	}
}

func (f *fakeSubscriberRepo) CreatePending(ctx context.Context, tx *sqlx.Tx, sub *model.Subscriber) error {
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeSubscriberRepo) PendingTokenByEmail(ctx context.Context, tx *sqlx.Tx, email string) (string, error) {
	return f.pendingTokens[email], nil
}

func (f *fakeSubscriberRepo) StoreToken(ctx context.Context, tx *sqlx.Tx, token string, subscriberID uuid.UUID) error {
	f.tokenOwners[token] = subscriberID
	return nil
}

func (f *fakeSubscriberRepo) SubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	id, ok := f.tokenOwners[token]
	if !ok {
		return uuid.Nil, fmt.Errorf("token not found")
	}
	return id, nil
}

func (f *fakeSubscriberRepo) Confirm(ctx context.Context, id uuid.UUID) error {
	f.confirmed = append(f.confirmed, id)
	return nil
}

func (f *fakeSubscriberRepo) Get(ctx context.Context, id uuid.UUID) (*model.Subscriber, error) {
	return nil, fmt.Errorf("not found")
}

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

func (fakeTxManager) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return nil, fmt.Errorf("not supported")
}

type sentEmail struct {
	to       string
	subject  string
	htmlBody string
	textBody string
}

type fakeEmailService struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmailService) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, htmlBody: htmlBody, textBody: textBody})
	return nil
}

func newTestService(repo *fakeSubscriberRepo, emailSvc *fakeEmailService) Service {
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewService(repo, fakeTxManager{}, emailSvc, "https://news.example.com", log)
}

func TestSubscribeCreatesPendingSubscriberAndSendsLink(t *testing.T) {
	repo := newFakeSubscriberRepo()
	emailSvc := &fakeEmailService{}
	svc := newTestService(repo, emailSvc)

	err := svc.Subscribe(context.Background(), "ursula@example.com", "Ursula Le Guin")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "ursula@example.com", repo.created[0].Email)
	assert.Equal(t, model.SubscriberStatusPending, repo.created[0].Status)

	require.Len(t, repo.tokenOwners, 1)
	require.Len(t, emailSvc.sent, 1)
	assert.Equal(t, "ursula@example.com", emailSvc.sent[0].to)
	for token := range repo.tokenOwners {
		link := "https://news.example.com/subscriptions/confirm?token=" + token
		assert.Contains(t, emailSvc.sent[0].textBody, link)
		assert.Contains(t, emailSvc.sent[0].htmlBody, link)
	}
}

func TestSubscribeReusesPendingToken(t *testing.T) {
	repo := newFakeSubscriberRepo()
	repo.pendingTokens["ursula@example.com"] = strings.Repeat("a", tokenLength)
	emailSvc := &fakeEmailService{}
	svc := newTestService(repo, emailSvc)

	err := svc.Subscribe(context.Background(), "ursula@example.com", "Ursula Le Guin")
	require.NoError(t, err)

	assert.Empty(t, repo.created, "no new subscriber row for a pending email")
	require.Len(t, emailSvc.sent, 1)
	assert.Contains(t, emailSvc.sent[0].textBody, repo.pendingTokens["ursula@example.com"])
}

func TestSubscribeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		subscriber string
	}{
		{"empty name", "ursula@example.com", "   "},
		{"name too long", "ursula@example.com", strings.Repeat("a", maxNameLength+1)},
		{"forbidden characters", "ursula@example.com", `<script>`},
		{"empty email", "", "Ursula"},
		{"malformed email", "not-an-email", "Ursula"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSubscriberRepo()
			emailSvc := &fakeEmailService{}
			svc := newTestService(repo, emailSvc)

			err := svc.Subscribe(context.Background(), tt.email, tt.subscriber)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
			assert.Empty(t, repo.created)
			assert.Empty(t, emailSvc.sent)
		})
	}
}

func TestSubscribeReportsEmailFailure(t *testing.T) {
	repo := newFakeSubscriberRepo()
	emailSvc := &fakeEmailService{err: fmt.Errorf("smtp timeout")}
	svc := newTestService(repo, emailSvc)

	err := svc.Subscribe(context.Background(), "ursula@example.com", "Ursula")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInternal, apperrors.CodeOf(err))
}

func TestConfirmMarksSubscriberConfirmed(t *testing.T) {
	repo := newFakeSubscriberRepo()
	subscriberID := uuid.New()
	token := strings.Repeat("b", tokenLength)
	repo.tokenOwners[token] = subscriberID
	svc := newTestService(repo, &fakeEmailService{})

	err := svc.Confirm(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, repo.confirmed, 1)
	assert.Equal(t, subscriberID, repo.confirmed[0])
}

func TestConfirmRejectsMalformedToken(t *testing.T) {
	svc := newTestService(newFakeSubscriberRepo(), &fakeEmailService{})

	err := svc.Confirm(context.Background(), "too-short")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestConfirmRejectsUnknownToken(t *testing.T) {
	svc := newTestService(newFakeSubscriberRepo(), &fakeEmailService{})

	err := svc.Confirm(context.Background(), strings.Repeat("c", tokenLength))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}
