package identity

import (
	"errors"
	"strings"
)

// ErrLoginAlreadyUsed is returned when a login belongs to an activated account
var ErrLoginAlreadyUsed = errors.New("login name already used")

// ErrEmailAlreadyUsed is returned when an email belongs to an activated account
var ErrEmailAlreadyUsed = errors.New("email is already in use")

// ErrAccountNotFound covers unknown logins, ids, and consumed or
// expired activation/reset keys; callers cannot tell those apart
var ErrAccountNotFound = errors.New("account not found")

// ErrMismatchedHashAndPassword is the error for invalid credentials
var ErrMismatchedHashAndPassword = errors.New("mismatched password and hash")

// ErrNoEmptyString is the error we return for required string fields
var ErrNoEmptyString = errors.New("value cannot be an empty string")

// IsConflictError will check for identifier conflicts
func IsConflictError(err error) bool {
	return errors.Is(err, ErrLoginAlreadyUsed) || errors.Is(err, ErrEmailAlreadyUsed)
}

// IsNotFoundError will check for the uniform absent result
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// uniqueViolation reports whether err is a storage level uniqueness
// violation touching the given column. The pre-insert lookups are only
// advisory, the constraint is the authoritative check under races.
func uniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value") {
		return false
	}
	return strings.Contains(msg, column)
}
