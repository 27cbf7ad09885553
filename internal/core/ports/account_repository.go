package ports

import (
	"context"
	"time"

	"github.com/99minutos/account-service/internal/core/domain"
)

// AccountRepository defines persistence operations for accounts.
//
// Email and nickname uniqueness is enforced by the store: Insert and Update
// return domain.ErrEmailTaken or domain.ErrNicknameTaken on a unique index
// violation. Lookups of absent accounts return domain.ErrAccountNotFound.
// Every other failure is a wrapped storage error.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByNickname(ctx context.Context, nickname string) (*domain.Account, error)

	Insert(ctx context.Context, account *domain.Account) error
	// Update applies patch in one statement and returns the updated account.
	Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error)
	// Delete reports whether a document was actually removed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns accounts ordered by (created_at, id) ascending.
	List(ctx context.Context, skip, limit int) ([]*domain.Account, error)
	Count(ctx context.Context) (int64, error)

	// RecordFailedLogin atomically increments the failure counter of an
	// unlocked account and locks it when the new count reaches threshold.
	// It returns domain.ErrAccountLocked if the account is already locked.
	RecordFailedLogin(ctx context.Context, id string, threshold int, at time.Time) (*domain.Account, error)
	// RecordSuccessfulLogin resets the counter and stamps last_login_at,
	// guarded by is_locked = false (domain.ErrAccountLocked otherwise).
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) (*domain.Account, error)
	// Unlock clears the lock flag and the failure counter.
	Unlock(ctx context.Context, id string, at time.Time) (*domain.Account, error)
	// ConsumeVerificationToken marks the email verified and clears the token
	// only when the stored token equals token and the account is unverified.
	// A mismatch returns domain.ErrInvalidVerificationToken.
	ConsumeVerificationToken(ctx context.Context, id, token string, at time.Time) (*domain.Account, error)
}
