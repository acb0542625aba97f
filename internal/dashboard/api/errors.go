package api

import (
	"errors"
	"fmt"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

var (
	// ErrAuth means the login credentials were rejected.
	ErrAuth = errors.New("invalid credentials")
	// ErrUnauthorized is a raw 401 from an authenticated call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired is what callers see after a 401 tore the session down.
	ErrSessionExpired = errors.New("session expired, log in again")
	ErrNoSession      = errors.New("not logged in")
	ErrNoProject      = errors.New("no project open")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	// ErrConflict means the project changed since it was loaded.
	ErrConflict = errors.New("project changed since it was loaded, refresh and retry")
)

// NetworkError is transient: timeouts, refused connections, 5xx, 429.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a user-correctable write rejection.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OrphanedUploadError reports a stored file whose chat message could not be
// appended. Retrying the append with Attachment is safe.
type OrphanedUploadError struct {
	Attachment domain.Attachment
	Err        error
}

func (e *OrphanedUploadError) Error() string {
	return fmt.Sprintf("file uploaded to %s but message failed: %v", e.Attachment.URL, e.Err)
}

func (e *OrphanedUploadError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying later may succeed.
func IsTransient(err error) bool {
	var ne *NetworkError
	var oe *OrphanedUploadError
	return errors.As(err, &ne) || errors.As(err, &oe)
}
