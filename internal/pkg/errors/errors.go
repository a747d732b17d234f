package errors

import "errors"

// Common application errors shared across services and repositories.
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for authentication failures (bad token, bad credentials).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks permission for the action.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for invalid input data.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken is returned when a token (refresh, verification) has expired.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict is returned for state conflicts, including lost conditional updates.
	ErrConflict = errors.New("resource state conflict")

	// ErrTooManyRequests is returned when a cooldown or rate limit is still in effect.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrUnavailable is returned when a required subsystem is administratively disabled.
	ErrUnavailable = errors.New("service unavailable")
)
