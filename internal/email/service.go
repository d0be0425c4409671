package email

import (
	"context"
	"errors"
)

// Service is the outbound email transport. Send failures are classified:
// a PermanentError means the message will never be deliverable to this
// recipient; anything else is assumed transient and retryable.
type Service interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// PermanentError marks a send failure that retrying cannot fix, such as
// a rejected recipient address.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent send failure: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// TransientError marks a send failure worth retrying later.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient send failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is classified as unretryable.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
