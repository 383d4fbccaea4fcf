package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound means the caller's identity did not resolve. It is never folded into ErrForbidden.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden covers both a missing document and one the caller may not access.
	ErrForbidden = errors.New("forbidden")
	// ErrCollaboratorNotFound means the user being granted access does not exist.
	ErrCollaboratorNotFound = errors.New("collaborator not found")
	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage failure")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
