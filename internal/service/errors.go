package service

import "errors"

// Caller-facing outcomes. Handlers map these with errors.Is; anything else is internal.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFoundOrExpired = errors.New("credential not found or expired")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrInvalidCode       = errors.New("invalid code")
	ErrResendTooSoon     = errors.New("resend requested too soon")
	ErrDispatchFailed    = errors.New("code dispatch failed")
	ErrAccountExists     = errors.New("account already exists")
)

// isTerminal reports whether a follow-up failure should consume the credential. Everything
// else leaves the record in place so the user can retry with the same code.
func isTerminal(err error) bool {
	return errors.Is(err, ErrAccountExists) || errors.Is(err, ErrNotFoundOrExpired)
}
