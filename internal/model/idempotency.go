package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrIdempotencyInFlight is returned when a ledger record exists but has
// not been finalized: a concurrent submission holds the key.
var ErrIdempotencyInFlight = errors.New("idempotency record not finalized")

// Idempotency record states. A record is inserted as a placeholder when a
// submission starts and flipped to completed in the same transaction that
// commits the submission's side effects. Completed records are permanent.
const (
	IdempotencyStateInProgress = "in_progress"
	IdempotencyStateCompleted  = "completed"
)

// IdempotencyRecord stores the outcome of an accepted submission so that
// retries of the same (publisher, key) replay the response without
// redoing the work.
type IdempotencyRecord struct {
	PublisherID        uuid.UUID       `json:"publisher_id" db:"publisher_id"`
	IdempotencyKey     string          `json:"idempotency_key" db:"idempotency_key"`
	State              string          `json:"state" db:"state"`
	ResponseStatusCode *int            `json:"response_status_code,omitempty" db:"response_status_code"`
	ResponseHeaders    json.RawMessage `json:"response_headers,omitempty" db:"response_headers"`
	ResponseBody       []byte          `json:"response_body,omitempty" db:"response_body"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	FinalizedAt        *time.Time      `json:"finalized_at,omitempty" db:"finalized_at"`
}

// SavedResponse is the HTTP-level outcome captured in the ledger. Replays
// must reproduce it byte for byte.
type SavedResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       json.RawMessage   `json:"body"`
}

// SavedResponse decodes the record into the response to replay.
// Only valid on completed records.
func (r *IdempotencyRecord) SavedResponse() (*SavedResponse, error) {
	if r.State != IdempotencyStateCompleted || r.ResponseStatusCode == nil {
		return nil, ErrIdempotencyInFlight
	}

	headers := map[string]string{}
	if len(r.ResponseHeaders) > 0 {
		if err := json.Unmarshal(r.ResponseHeaders, &headers); err != nil {
			return nil, err
		}
	}

	return &SavedResponse{
		StatusCode: *r.ResponseStatusCode,
		Headers:    headers,
		Body:       json.RawMessage(r.ResponseBody),
	}, nil
}
