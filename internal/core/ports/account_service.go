package ports

import (
	"context"

	"github.com/99minutos/account-service/internal/core/domain"
)

// CreateAccountInput carries registration data. Role is only honoured when
// the caller is an administrator; the transport layer enforces that.
type CreateAccountInput struct {
	Email             string `validate:"required,email,max=254"`
	Password          string `validate:"required"`
	Nickname          string `validate:"omitempty,nickname"`
	FirstName         string `validate:"max=100"`
	LastName          string `validate:"max=100"`
	Bio               string `validate:"max=500"`
	ProfilePictureURL string `validate:"omitempty,http_url"`
	Role              domain.Role
}

// CreateAccountResult is returned by Create. Warnings lists non-fatal
// problems such as a verification email that could not be sent.
type CreateAccountResult struct {
	Account  *domain.Account
	Warnings []string
}

// UpdateAccountInput is a partial update; nil fields are left untouched.
type UpdateAccountInput struct {
	Nickname          *string `validate:"omitempty,nickname"`
	Email             *string `validate:"omitempty,email,max=254"`
	Password          *string `validate:"omitempty"`
	FirstName         *string `validate:"omitempty,max=100"`
	LastName          *string `validate:"omitempty,max=100"`
	Bio               *string `validate:"omitempty,max=500"`
	ProfilePictureURL *string `validate:"omitempty,http_url"`
	Role              *domain.Role
}

// ListAccountsResult is one page of accounts plus the overall total.
type ListAccountsResult struct {
	Items []*domain.Account
	Total int64
	Skip  int
	Limit int
}

// AccountService defines the account lifecycle use cases.
type AccountService interface {
	Create(ctx context.Context, input CreateAccountInput) (*CreateAccountResult, error)
	Update(ctx context.Context, id string, input UpdateAccountInput) (*domain.Account, error)
	Delete(ctx context.Context, id string) (bool, error)

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNickname(ctx context.Context, nickname string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, skip, limit int) (*ListAccountsResult, error)

	Login(ctx context.Context, email, password string) (*domain.Account, error)
	IsAccountLocked(ctx context.Context, email string) (bool, error)
	UnlockAccount(ctx context.Context, id string) error
	ResetPassword(ctx context.Context, id, newPassword string) error
	VerifyEmailWithToken(ctx context.Context, id, token string) error
	ResendVerificationEmail(ctx context.Context, email string) error
}

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(account *domain.Account) (string, error)
}
