package model

import (
	"time"

	"github.com/google/uuid"
)

// Publisher is an account authorized to submit newsletter issues.
type Publisher struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
