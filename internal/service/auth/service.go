package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/newsletter-api/internal/model"
	"github.com/jwalitptl/newsletter-api/internal/repository"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
	"github.com/jwalitptl/newsletter-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	publisherCacheTTL     = 5 * time.Minute
	publisherCacheCleanup = 15 * time.Minute
)

// fallbackHash is compared against when the username is unknown so the
// request costs a bcrypt verification either way.
const fallbackHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service is the credential store: it verifies publisher credentials on
// each submission request.
type Service interface {
	Verify(ctx context.Context, username, password string) (uuid.UUID, error)
}

type service struct {
	repo   repository.PublisherRepository
	hasher security.PasswordHasher
	cache  *cache.Cache
}

func NewService(repo repository.PublisherRepository, hasher security.PasswordHasher) Service {
	return &service{
		repo:   repo,
		hasher: hasher,
		cache:  cache.New(publisherCacheTTL, publisherCacheCleanup),
	}
}

func (s *service) Verify(ctx context.Context, username, password string) (uuid.UUID, error) {
	publisher, err := s.lookup(ctx, username)
	if err != nil {
		// Burn a comparison anyway to keep the failure path the same
		// cost as the success path.
		s.hasher.Compare(fallbackHash, password)
		return uuid.Nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	if err := s.hasher.Compare(publisher.PasswordHash, password); err != nil {
		return uuid.Nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	return publisher.ID, nil
}

func (s *service) lookup(ctx context.Context, username string) (*model.Publisher, error) {
	if cached, ok := s.cache.Get(username); ok {
		return cached.(*model.Publisher), nil
	}

	publisher, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	s.cache.Set(username, publisher, cache.DefaultExpiration)
	return publisher, nil
}
