package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/newsletter-api/internal/email"
	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
)

const maxNameLength = 256

// Characters that would let a subscriber name break out of the contexts
// it is rendered in.
const forbiddenNameChars = `/()"<>\{}`

// Service handles subscriber sign-up and confirmation.
type Service interface {
	Subscribe(ctx context.Context, emailAddr, name string) error
	Confirm(ctx context.Context, token string) error
}

type service struct {
	repo     repository.SubscriberRepository
	tx       repository.TxManager
	emailSvc email.Service
	baseURL  string
	logger   *logger.Logger
}

func NewService(repo repository.SubscriberRepository, tx repository.TxManager, emailSvc email.Service, baseURL string, logger *logger.Logger) Service {
	return &service{
		repo:     repo,
		tx:       tx,
		emailSvc: emailSvc,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// Subscribe registers a pending subscriber and emails a confirmation
// link. A repeated sign-up for a still-pending email re-sends the link
// with the originally stored token instead of creating anything new.
func (s *service) Subscribe(ctx context.Context, emailAddr, name string) error {
	if err := ValidateName(name); err != nil {
		return apperrors.BadRequest(err.Error(), err)
	}
	if err := validateEmail(emailAddr); err != nil {
		return apperrors.BadRequest(err.Error(), err)
	}

	var token string
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.repo.PendingTokenByEmail(ctx, tx, emailAddr)
		if err != nil {
			return err
		}
		if existing != "" {
			token = existing
			return nil
		}

		sub := &model.Subscriber{
			ID:           uuid.New(),
			Email:        emailAddr,
			Name:         name,
			Status:       model.SubscriberStatusPending,
			SubscribedAt: time.Now().UTC(),
		}
		if err := s.repo.CreatePending(ctx, tx, sub); err != nil {
			return err
		}

		token = GenerateToken()
		return s.repo.StoreToken(ctx, tx, token, sub.ID)
	})
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.sendConfirmationEmail(ctx, emailAddr, token); err != nil {
		s.logger.Error(err, "failed to send confirmation email")
		return apperrors.Internal(err)
	}

	return nil
}

// Confirm redeems a confirmation token. Confirming an already-confirmed
// subscriber is a no-op.
func (s *service) Confirm(ctx context.Context, token string) error {
	if err := ParseToken(token); err != nil {
		return apperrors.BadRequest(err.Error(), err)
	}

	subscriberID, err := s.repo.SubscriberIDByToken(ctx, token)
	if err != nil {
		return apperrors.Unauthorized(fmt.Errorf("unknown subscription token"))
	}

	if err := s.repo.Confirm(ctx, subscriberID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *service) sendConfirmationEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/subscriptions/confirm?token=%s", s.baseURL, token)
	textBody := fmt.Sprintf(
		"Welcome to our newsletter!\nVisit %s to confirm your subscription.",
		link,
	)
	htmlBody := fmt.Sprintf(
		`Welcome to our newsletter!<br/>Click <a href=%q>here</a> to confirm your subscription.`,
		link,
	)
	return s.emailSvc.Send(ctx, to, "Welcome!", htmlBody, textBody)
}

// ValidateName rejects subscriber names that are empty, too long, or
// contain characters with meaning in rendered contexts. Exposed so the
// HTTP layer can apply the same rule at binding time.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name must not exceed %d characters", maxNameLength)
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return fmt.Errorf("name contains forbidden characters")
	}
	return nil
}

func validateEmail(emailAddr string) error {
	if emailAddr == "" {
		return fmt.Errorf("email must not be empty")
	}
	if len(emailAddr) > maxNameLength {
		return fmt.Errorf("email must not exceed %d characters", maxNameLength)
	}
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return fmt.Errorf("email is not valid")
	}
	return nil
}
