package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/ports"
)

// stubAccountService answers every call through an optional function field.
// Unset fields fail the test when reached.
type stubAccountService struct {
	t *testing.T

	createFn        func(ctx context.Context, in ports.CreateAccountInput) (*ports.CreateAccountResult, error)
	updateFn        func(ctx context.Context, id string, in ports.UpdateAccountInput) (*domain.Account, error)
	deleteFn        func(ctx context.Context, id string) (bool, error)
	getByIDFn       func(ctx context.Context, id string) (*domain.Account, error)
	getByNicknameFn func(ctx context.Context, nickname string) (*domain.Account, error)
	getByEmailFn    func(ctx context.Context, email string) (*domain.Account, error)
	listFn          func(ctx context.Context, skip, limit int) (*ports.ListAccountsResult, error)
	loginFn         func(ctx context.Context, email, password string) (*domain.Account, error)
	isLockedFn      func(ctx context.Context, email string) (bool, error)
	unlockFn        func(ctx context.Context, id string) error
	resetFn         func(ctx context.Context, id, password string) error
	verifyFn        func(ctx context.Context, id, token string) error
	resendFn        func(ctx context.Context, email string) error
}

func (s *stubAccountService) unexpected(name string) {
	s.t.Helper()
	s.t.Fatalf("unexpected call to %s", name)
}

func (s *stubAccountService) Create(ctx context.Context, in ports.CreateAccountInput) (*ports.CreateAccountResult, error) {
	if s.createFn == nil {
		s.unexpected("Create")
	}
	return s.createFn(ctx, in)
}

func (s *stubAccountService) Update(ctx context.Context, id string, in ports.UpdateAccountInput) (*domain.Account, error) {
	if s.updateFn == nil {
		s.unexpected("Update")
	}
	return s.updateFn(ctx, id, in)
}

func (s *stubAccountService) Delete(ctx context.Context, id string) (bool, error) {
	if s.deleteFn == nil {
		s.unexpected("Delete")
	}
	return s.deleteFn(ctx, id)
}

func (s *stubAccountService) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if s.getByIDFn == nil {
		s.unexpected("GetByID")
	}
	return s.getByIDFn(ctx, id)
}

func (s *stubAccountService) GetByNickname(ctx context.Context, nickname string) (*domain.Account, error) {
	if s.getByNicknameFn == nil {
		s.unexpected("GetByNickname")
	}
	return s.getByNicknameFn(ctx, nickname)
}

func (s *stubAccountService) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if s.getByEmailFn == nil {
		s.unexpected("GetByEmail")
	}
	return s.getByEmailFn(ctx, email)
}

func (s *stubAccountService) List(ctx context.Context, skip, limit int) (*ports.ListAccountsResult, error) {
	if s.listFn == nil {
		s.unexpected("List")
	}
	return s.listFn(ctx, skip, limit)
}

func (s *stubAccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	if s.loginFn == nil {
		s.unexpected("Login")
	}
	return s.loginFn(ctx, email, password)
}

func (s *stubAccountService) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	if s.isLockedFn == nil {
		s.unexpected("IsAccountLocked")
	}
	return s.isLockedFn(ctx, email)
}

func (s *stubAccountService) UnlockAccount(ctx context.Context, id string) error {
	if s.unlockFn == nil {
		s.unexpected("UnlockAccount")
	}
	return s.unlockFn(ctx, id)
}

func (s *stubAccountService) ResetPassword(ctx context.Context, id, password string) error {
	if s.resetFn == nil {
		s.unexpected("ResetPassword")
	}
	return s.resetFn(ctx, id, password)
}

func (s *stubAccountService) VerifyEmailWithToken(ctx context.Context, id, token string) error {
	if s.verifyFn == nil {
		s.unexpected("VerifyEmailWithToken")
	}
	return s.verifyFn(ctx, id, token)
}

func (s *stubAccountService) ResendVerificationEmail(ctx context.Context, email string) error {
	if s.resendFn == nil {
		s.unexpected("ResendVerificationEmail")
	}
	return s.resendFn(ctx, email)
}

type stubIssuer struct {
	token string
	err   error
}

func (s stubIssuer) Issue(*domain.Account) (string, error) { return s.token, s.err }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func sampleAccount(id string) *domain.Account {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Account{
		ID:           id,
		Nickname:     "ana_1",
		Email:        "ana@example.com",
		PasswordHash: "$2a$10$secret",
		Role:         domain.RoleAuthenticated,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// newContext builds an echo context; a non-empty callerID simulates the
// claims set by the Auth middleware.
func newContext(method, target, body, callerID string, role domain.Role) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if callerID != "" {
		c.Set("account_id", callerID)
		c.Set("role", string(role))
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

