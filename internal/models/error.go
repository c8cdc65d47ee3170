package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled  = errors.New("account is disabled")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrAccountLocked    = errors.New("account is temporarily locked")

	// Login throttle errors
	ErrInvalidEmail     = errors.New("invalid email")
	ErrStoreUnavailable = errors.New("throttle store unavailable")

	// CAPTCHA errors. ErrCaptchaRequired means no token was supplied while the
	// gate is active; ErrCaptchaVerificationFailed means a supplied token was
	// not accepted. ErrCaptchaUnavailable is wrapped together with
	// ErrCaptchaVerificationFailed when the provider could not be reached.
	ErrCaptchaRequired           = errors.New("captcha required")
	ErrCaptchaVerificationFailed = errors.New("captcha verification failed")
	ErrCaptchaUnavailable        = errors.New("captcha service unavailable")
)

// LockedError reports a rejected attempt against a locked account.
type LockedError struct {
	RetryAfterSeconds int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry in %d seconds", e.RetryAfterSeconds)
}

// Unwrap lets errors.Is(err, ErrAccountLocked) match.
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}
