package model

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryTask is one unit of work: send one issue to one subscriber.
// The (issue_id, subscriber_id) pair is the primary key; a row exists
// only while the delivery is outstanding.
type DeliveryTask struct {
	IssueID      uuid.UUID  `json:"issue_id" db:"issue_id"`
	SubscriberID uuid.UUID  `json:"subscriber_id" db:"subscriber_id"`
	Attempts     int        `json:"attempts" db:"attempts"`
	RetryAt      *time.Time `json:"retry_at,omitempty" db:"retry_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// ClaimedTask is a delivery task joined with everything the worker needs
// to perform the send while holding the task's row lock.
type ClaimedTask struct {
	IssueID      uuid.UUID `db:"issue_id"`
	SubscriberID uuid.UUID `db:"subscriber_id"`
	Attempts     int       `db:"attempts"`
	Email        string    `db:"email"`
	Title        string    `db:"title"`
	HTMLContent  string    `db:"html_content"`
	TextContent  string    `db:"text_content"`
}

// DeliveryFailure records a task that was dropped after a permanent
// failure or after exhausting its retry budget.
type DeliveryFailure struct {
	IssueID      uuid.UUID `json:"issue_id" db:"issue_id"`
	SubscriberID uuid.UUID `json:"subscriber_id" db:"subscriber_id"`
	Email        string    `json:"email" db:"email"`
	Reason       string    `json:"reason" db:"reason"`
	Attempts     int       `json:"attempts" db:"attempts"`
	FailedAt     time.Time `json:"failed_at" db:"failed_at"`
}
