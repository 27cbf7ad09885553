package ports

import (
	"context"
	"time"

	"github.com/99minutos/account-service/internal/core/domain"
)

// NotificationCategory names the kind of email sent to an account holder.
type NotificationCategory string

const (
	CategoryEmailVerification NotificationCategory = "email_verification"
	CategoryPasswordReset     NotificationCategory = "password_reset"
	CategoryAccountLocked     NotificationCategory = "account_locked"
)

// Notifier delivers account emails. Implementations must never log the
// verification token.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, account *domain.Account) error
	SendPasswordResetNotice(ctx context.Context, account *domain.Account) error
	SendAccountLockedNotice(ctx context.Context, account *domain.Account) error
}

// NotificationJob is one queued email.
type NotificationJob struct {
	Category NotificationCategory
	Account  domain.Account
}

// NotificationQueue accepts jobs for asynchronous delivery. Enqueue never
// blocks; a job that cannot be buffered is dropped.
type NotificationQueue interface {
	Enqueue(job NotificationJob) bool
}

// NotificationThrottle limits how often one category is sent to one account.
// Allow returns true and starts a new window when no window is open.
type NotificationThrottle interface {
	Allow(ctx context.Context, accountID string, category NotificationCategory, window time.Duration) (bool, error)
}
