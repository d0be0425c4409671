package model

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterIssue represents one publication event with fixed content.
// Rows are created once per accepted submission and never mutated.
type NewsletterIssue struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	HTMLContent string    `json:"html_content" db:"html_content"`
	TextContent string    `json:"text_content" db:"text_content"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}
