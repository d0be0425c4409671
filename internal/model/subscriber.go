package model

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber status constants
const (
	SubscriberStatusPending   = "pending_confirmation"
	SubscriberStatusConfirmed = "confirmed"
)

// Subscriber represents a newsletter subscriber
type Subscriber struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Status       string    `json:"status" db:"status"`
	SubscribedAt time.Time `json:"subscribed_at" db:"subscribed_at"`
}

// Confirmed reports whether the subscriber is an eligible delivery target.
func (s *Subscriber) Confirmed() bool {
	return s.Status == SubscriberStatusConfirmed
}

// SubscriptionToken associates a confirmation token with a pending subscriber.
type SubscriptionToken struct {
	Token        string    `json:"-" db:"subscription_token"`
	SubscriberID uuid.UUID `json:"subscriber_id" db:"subscriber_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
