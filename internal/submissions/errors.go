package submissions

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("submission not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrAlreadyVerified = errors.New("submission is already verified")
	ErrForbidden       = errors.New("you can only claim submissions made under your GitHub username")
	ErrInvalidPattern  = errors.New("pattern must contain at least one non-wildcard character")
)

// StorageError wraps a failed store call. Its message is generic so it can be
// shown to callers; the cause is kept for logs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err came from the persistence layer.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
