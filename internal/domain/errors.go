package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNoCredits        = errors.New("No credits available")
	ErrInvalidInput     = errors.New("invalid input")
	ErrProviderFailure  = errors.New("provider failure")
	ErrStaleTransition  = errors.New("stale status transition")
	ErrBillingDisabled  = errors.New("billing is not configured")
	ErrMailerNotEnabled = errors.New("mailer is not configured")
)
