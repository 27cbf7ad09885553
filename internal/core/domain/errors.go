package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an account operation failed.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindLocked
	KindAuth
	KindDependency
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindLocked:
		return "locked"
	case KindAuth:
		return "auth"
	default:
		return "dependency"
	}
}

// Kind sentinels. Every specific error below wraps exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrLocked     = errors.New("locked")
	ErrAuth       = errors.New("authentication failed")
	ErrDependency = errors.New("dependency failure")
)

var (
	ErrInvalidInput             = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrWeakPassword             = fmt.Errorf("%w: password does not meet the strength policy", ErrValidation)
	ErrPasswordTooLong          = fmt.Errorf("%w: password is too long", ErrValidation)
	ErrInvalidRole              = fmt.Errorf("%w: unknown role", ErrValidation)
	ErrInvalidPagination        = fmt.Errorf("%w: skip and limit must be non-negative", ErrValidation)
	ErrInvalidVerificationToken = fmt.Errorf("%w: invalid or already used verification token", ErrValidation)

	ErrEmailTaken    = fmt.Errorf("%w: email already in use", ErrConflict)
	ErrNicknameTaken = fmt.Errorf("%w: nickname already in use", ErrConflict)

	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrNotFound)

	ErrAccountLocked = fmt.Errorf("%w: account is locked", ErrLocked)

	ErrInvalidCredentials = fmt.Errorf("%w: the email or password is incorrect", ErrAuth)

	ErrNicknameSpaceExhausted = fmt.Errorf("%w: could not generate a unique nickname", ErrDependency)
)

// ValidationError carries a human readable reason for a structural
// validation failure. It matches ErrValidation and ErrInvalidInput.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// KindOf reports the failure kind of err. Errors that match no kind sentinel
// are treated as dependency failures.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrLocked):
		return KindLocked
	case errors.Is(err, ErrAuth):
		return KindAuth
	default:
		return KindDependency
	}
}
