package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/policy"
	"github.com/99minutos/account-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub repository
// ---------------------------------------------------------------------------

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	err      error // if set, every call returns this error
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

func (r *stubAccountRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, a := range r.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) FindByNickname(_ context.Context, nickname string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, a := range r.accounts {
		if a.Nickname == nickname {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// Insert enforces the same unique indexes as the real stores.
func (r *stubAccountRepo) Insert(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return domain.ErrEmailTaken
		}
		if a.Nickname == account.Nickname {
			return domain.ErrNicknameTaken
		}
	}
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *stubAccountRepo) Update(_ context.Context, id string, p domain.AccountPatch) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if p.Nickname != nil {
		a.Nickname = *p.Nickname
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.ProfilePictureURL != nil {
		a.ProfilePictureURL = *p.ProfilePictureURL
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.EmailVerified != nil {
		a.EmailVerified = *p.EmailVerified
	}
	if p.VerificationToken != nil {
		a.VerificationToken = *p.VerificationToken
	}
	a.UpdatedAt = p.UpdatedAt
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if _, ok := r.accounts[id]; !ok {
		return false, nil
	}
	delete(r.accounts, id)
	return true, nil
}

func (r *stubAccountRepo) List(_ context.Context, skip, limit int) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	all := make([]*domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		all = append(all, cloneAccount(a))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if skip >= len(all) {
		return []*domain.Account{}, nil
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return all[skip:end], nil
}

func (r *stubAccountRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	return int64(len(r.accounts)), nil
}

func (r *stubAccountRepo) RecordFailedLogin(_ context.Context, id string, threshold int, at time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if a.IsLocked {
		return nil, domain.ErrAccountLocked
	}
	a.FailedLoginAttempts++
	a.IsLocked = a.FailedLoginAttempts >= threshold
	a.UpdatedAt = at
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) RecordSuccessfulLogin(_ context.Context, id string, at time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if a.IsLocked {
		return nil, domain.ErrAccountLocked
	}
	a.FailedLoginAttempts = 0
	ts := at
	a.LastLoginAt = &ts
	a.UpdatedAt = at
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) Unlock(_ context.Context, id string, at time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a.IsLocked = false
	a.FailedLoginAttempts = 0
	a.UpdatedAt = at
	return cloneAccount(a), nil
}

func (r *stubAccountRepo) ConsumeVerificationToken(_ context.Context, id, token string, at time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if a.EmailVerified || a.VerificationToken == "" || a.VerificationToken != token {
		return nil, domain.ErrInvalidVerificationToken
	}
	a.EmailVerified = true
	a.VerificationToken = ""
	a.UpdatedAt = at
	return cloneAccount(a), nil
}

// ---------------------------------------------------------------------------
// Notification stubs
// ---------------------------------------------------------------------------

type stubNotifier struct {
	mu      sync.Mutex
	sent    []string // account ids that received a verification email
	err     error
	ctxErrs []error // ctx.Err() observed at send time
}

func (n *stubNotifier) SendVerificationEmail(ctx context.Context, a *domain.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a.ID)
	return nil
}

func (n *stubNotifier) SendPasswordResetNotice(context.Context, *domain.Account) error { return nil }
func (n *stubNotifier) SendAccountLockedNotice(context.Context, *domain.Account) error { return nil }

type stubQueue struct {
	mu   sync.Mutex
	jobs []ports.NotificationJob
}

func (q *stubQueue) Enqueue(job ports.NotificationJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *stubQueue) categories() []ports.NotificationCategory {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ports.NotificationCategory, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Category)
	}
	return out
}

type stubThrottle struct {
	allow bool
	err   error
	calls int
}

func (t *stubThrottle) Allow(context.Context, string, ports.NotificationCategory, time.Duration) (bool, error) {
	t.calls++
	return t.allow, t.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const goodPassword = "Password123!"

type fixture struct {
	svc      *AccountService
	repo     *stubAccountRepo
	notifier *stubNotifier
	queue    *stubQueue
	throttle *stubThrottle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost

	f := &fixture{
		repo:     newStubAccountRepo(),
		notifier: &stubNotifier{},
		queue:    &stubQueue{},
		throttle: &stubThrottle{allow: true},
	}
	f.svc = NewAccountService(f.repo, policy.NewEngine(cfg), f.notifier, f.queue, f.throttle,
		Config{MaxLoginAttempts: 5}, zerolog.Nop())

	// Deterministic, strictly increasing clock.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	var mu sync.Mutex
	f.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return f
}

func (f *fixture) register(t *testing.T, email string) *domain.Account {
	t.Helper()
	res, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: email, Password: goodPassword})
	if err != nil {
		t.Fatalf("Create(%s) returned error: %v", email, err)
	}
	return res.Account
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAccountService_Create_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Create(context.Background(), ports.CreateAccountInput{
		Email:    "  Alice@Example.com ",
		Password: goodPassword,
		Nickname: "alice",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	a := res.Account
	if a.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", a.Email)
	}
	if a.Nickname != "alice" || a.Role != domain.RoleAuthenticated {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.EmailVerified || a.IsLocked || a.FailedLoginAttempts != 0 {
		t.Fatalf("new account must be unverified, unlocked, 0 attempts: %+v", a)
	}
	if len(a.VerificationToken) != 32 {
		t.Fatalf("expected 32-char token, got %q", a.VerificationToken)
	}
	if a.PasswordHash == goodPassword || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(goodPassword)) != nil {
		t.Fatalf("password was not hashed correctly")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != a.ID {
		t.Fatalf("expected one verification email, got %v", f.notifier.sent)
	}
}

func TestAccountService_Create_GeneratesNickname(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "bob@example.com")
	if !strings.HasPrefix(a.Nickname, "user_") {
		t.Fatalf("expected generated nickname, got %q", a.Nickname)
	}
}

func TestAccountService_Create_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "carol@example.com")

	_, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "CAROL@example.com", Password: goodPassword})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict kind, got %s", domain.KindOf(err))
	}
	if n, _ := f.repo.Count(context.Background()); n != 1 {
		t.Fatalf("expected exactly one stored account, got %d", n)
	}
}

func TestAccountService_Create_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "race@example.com", Password: goodPassword})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if domain.KindOf(err) != domain.KindConflict {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful registration, got %d", successes)
	}
}

func TestAccountService_Create_NicknameTaken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "a@example.com", Password: goodPassword, Nickname: "taken"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	_, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "b@example.com", Password: goodPassword, Nickname: "taken"})
	if !errors.Is(err, domain.ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}
}

func TestAccountService_Create_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name  string
		input ports.CreateAccountInput
		want  error
	}{
		{"missing email", ports.CreateAccountInput{Password: goodPassword}, domain.ErrInvalidInput},
		{"malformed email", ports.CreateAccountInput{Email: "not-an-email", Password: goodPassword}, domain.ErrInvalidInput},
		{"bad nickname", ports.CreateAccountInput{Email: "x@example.com", Password: goodPassword, Nickname: "a b"}, domain.ErrInvalidInput},
		{"weak password", ports.CreateAccountInput{Email: "x@example.com", Password: "password123"}, domain.ErrWeakPassword},
		{"unknown role", ports.CreateAccountInput{Email: "x@example.com", Password: goodPassword, Role: "ROOT"}, domain.ErrInvalidRole},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation kind, got %s", domain.KindOf(err))
			}
		})
	}
	if n, _ := f.repo.Count(context.Background()); n != 0 {
		t.Fatalf("expected no stored accounts, got %d", n)
	}
}

func TestAccountService_Create_EmailFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp: connection refused")

	res, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "dave@example.com", Password: goodPassword})
	if err != nil {
		t.Fatalf("Create must succeed when the email fails, got %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if _, err := f.repo.FindByID(context.Background(), res.Account.ID); err != nil {
		t.Fatalf("account must stay persisted: %v", err)
	}
}

func TestAccountService_Create_EmailSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Create(ctx, ports.CreateAccountInput{Email: "erin@example.com", Password: goodPassword}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(f.notifier.ctxErrs) != 1 || f.notifier.ctxErrs[0] != nil {
		t.Fatalf("notifier context must not inherit cancellation, got %v", f.notifier.ctxErrs)
	}
}

func TestAccountService_Create_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("connection reset by peer")

	_, err := f.svc.Create(context.Background(), ports.CreateAccountInput{Email: "x@example.com", Password: goodPassword})
	if domain.KindOf(err) != domain.KindDependency {
		t.Fatalf("expected dependency kind, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Login state machine
// ---------------------------------------------------------------------------

func TestAccountService_Login_LockoutAndUnlock(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "frank@example.com")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := f.svc.Login(ctx, a.Email, "WrongPass1!")
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	stored, _ := f.repo.FindByID(ctx, a.ID)
	if !stored.IsLocked || stored.FailedLoginAttempts != 5 {
		t.Fatalf("expected locked with 5 attempts, got locked=%v attempts=%d", stored.IsLocked, stored.FailedLoginAttempts)
	}
	if cats := f.queue.categories(); len(cats) != 1 || cats[0] != ports.CategoryAccountLocked {
		t.Fatalf("expected one account_locked notice, got %v", cats)
	}

	// Sixth attempt fails with the correct password.
	if _, err := f.svc.Login(ctx, a.Email, goodPassword); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if locked, _ := f.svc.IsAccountLocked(ctx, a.Email); !locked {
		t.Fatalf("IsAccountLocked must report true")
	}

	if err := f.svc.UnlockAccount(ctx, a.ID); err != nil {
		t.Fatalf("UnlockAccount returned error: %v", err)
	}
	got, err := f.svc.Login(ctx, a.Email, goodPassword)
	if err != nil {
		t.Fatalf("login after unlock failed: %v", err)
	}
	if got.FailedLoginAttempts != 0 || got.IsLocked || got.LastLoginAt == nil {
		t.Fatalf("unexpected state after login: %+v", got)
	}
}

func TestAccountService_Login_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "gina@example.com")
	ctx := context.Background()

	_, _ = f.svc.Login(ctx, a.Email, "WrongPass1!")
	_, _ = f.svc.Login(ctx, a.Email, "WrongPass1!")

	got, err := f.svc.Login(ctx, "GINA@example.com", goodPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if got.FailedLoginAttempts != 0 {
		t.Fatalf("expected attempts reset to 0, got %d", got.FailedLoginAttempts)
	}
}

func TestAccountService_Login_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "ghost@example.com", goodPassword)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if domain.KindOf(err) != domain.KindAuth {
		t.Fatalf("expected auth kind, got %s", domain.KindOf(err))
	}
}

func TestAccountService_Login_ConcurrentFailuresLockOnce(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "henry@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Login(context.Background(), a.Email, "WrongPass1!")
		}()
	}
	wg.Wait()

	stored, _ := f.repo.FindByID(context.Background(), a.ID)
	if !stored.IsLocked || stored.FailedLoginAttempts != 5 {
		t.Fatalf("expected locked at exactly 5 attempts, got locked=%v attempts=%d", stored.IsLocked, stored.FailedLoginAttempts)
	}
	if cats := f.queue.categories(); len(cats) != 1 {
		t.Fatalf("lock transition must be announced once, got %v", cats)
	}
}

func TestAccountService_IsAccountLocked_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	locked, err := f.svc.IsAccountLocked(context.Background(), "nobody@example.com")
	if err != nil || locked {
		t.Fatalf("expected (false, nil), got (%v, %v)", locked, err)
	}
}

func TestAccountService_UnlockAccount(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ivy@example.com")

	if err := f.svc.UnlockAccount(context.Background(), a.ID); err != nil {
		t.Fatalf("unlocking an unlocked account must succeed, got %v", err)
	}
	if err := f.svc.UnlockAccount(context.Background(), "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

func TestAccountService_VerifyEmailWithToken_SingleUse(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "jack@example.com")
	ctx := context.Background()

	if err := f.svc.VerifyEmailWithToken(ctx, a.ID, "deadbeef"); !errors.Is(err, domain.ErrInvalidVerificationToken) {
		t.Fatalf("expected ErrInvalidVerificationToken for wrong token, got %v", err)
	}
	if err := f.svc.VerifyEmailWithToken(ctx, a.ID, a.VerificationToken); err != nil {
		t.Fatalf("first verification failed: %v", err)
	}

	stored, _ := f.repo.FindByID(ctx, a.ID)
	if !stored.EmailVerified || stored.VerificationToken != "" {
		t.Fatalf("expected verified with cleared token, got %+v", stored)
	}

	if err := f.svc.VerifyEmailWithToken(ctx, a.ID, a.VerificationToken); !errors.Is(err, domain.ErrInvalidVerificationToken) {
		t.Fatalf("second verification must fail, got %v", err)
	}
	if err := f.svc.VerifyEmailWithToken(ctx, "missing", a.VerificationToken); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := f.svc.VerifyEmailWithToken(ctx, a.ID, ""); !errors.Is(err, domain.ErrInvalidVerificationToken) {
		t.Fatalf("empty token must be rejected, got %v", err)
	}
}

func TestAccountService_ResendVerificationEmail(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "kate@example.com")
	ctx := context.Background()

	if err := f.svc.ResendVerificationEmail(ctx, a.Email); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected two verification emails, got %d", len(f.notifier.sent))
	}

	f.throttle.allow = false
	if err := f.svc.ResendVerificationEmail(ctx, a.Email); err != nil {
		t.Fatalf("throttled resend must look like success, got %v", err)
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("throttled resend must not send, got %d emails", len(f.notifier.sent))
	}

	f.throttle.err = errors.New("redis: connection refused")
	if err := f.svc.ResendVerificationEmail(ctx, a.Email); err != nil {
		t.Fatalf("throttle errors must fail open, got %v", err)
	}
	if len(f.notifier.sent) != 3 {
		t.Fatalf("expected a third email after fail-open, got %d", len(f.notifier.sent))
	}
}

// Every outcome that depends on whether the address is registered must look
// the same to the caller.
func TestAccountService_ResendVerificationEmail_DoesNotRevealAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified := f.register(t, "verified@example.com")
	if err := f.svc.VerifyEmailWithToken(ctx, verified.ID, verified.VerificationToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	unverified := f.register(t, "pending@example.com")
	sentBefore := len(f.notifier.sent)

	if err := f.svc.ResendVerificationEmail(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: got %v", err)
	}
	if err := f.svc.ResendVerificationEmail(ctx, verified.Email); err != nil {
		t.Fatalf("verified email: got %v", err)
	}
	if len(f.notifier.sent) != sentBefore {
		t.Fatalf("verified account must not be emailed again")
	}

	f.notifier.err = errors.New("smtp: 421 service not available")
	if err := f.svc.ResendVerificationEmail(ctx, unverified.Email); err != nil {
		t.Fatalf("failed send: got %v", err)
	}
	f.notifier.err = nil

	f.throttle.allow = false
	if err := f.svc.ResendVerificationEmail(ctx, unverified.Email); err != nil {
		t.Fatalf("throttled: got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Update / reset / delete
// ---------------------------------------------------------------------------

func TestAccountService_Update_EmailChangeResetsVerification(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "leo@example.com")
	ctx := context.Background()
	if err := f.svc.VerifyEmailWithToken(ctx, a.ID, a.VerificationToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	newEmail := "Leo.New@example.com"
	bio := "hello"
	updated, err := f.svc.Update(ctx, a.ID, ports.UpdateAccountInput{Email: &newEmail, Bio: &bio})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Email != "leo.new@example.com" || updated.Bio != "hello" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.EmailVerified || updated.VerificationToken == "" {
		t.Fatalf("email change must reset verification: %+v", updated)
	}
	if cats := f.queue.categories(); len(cats) != 1 || cats[0] != ports.CategoryEmailVerification {
		t.Fatalf("expected a queued verification email, got %v", cats)
	}
}

func TestAccountService_Update_Conflicts(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "mia@example.com")
	b := f.register(t, "noah@example.com")
	ctx := context.Background()

	if _, err := f.svc.Update(ctx, b.ID, ports.UpdateAccountInput{Email: &a.Email}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := f.svc.Update(ctx, b.ID, ports.UpdateAccountInput{Nickname: &a.Nickname}); !errors.Is(err, domain.ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}
	weak := "short"
	if _, err := f.svc.Update(ctx, b.ID, ports.UpdateAccountInput{Password: &weak}); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	bad := domain.Role("ROOT")
	if _, err := f.svc.Update(ctx, b.ID, ports.UpdateAccountInput{Role: &bad}); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := f.svc.Update(ctx, "missing", ports.UpdateAccountInput{Bio: &a.Bio}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountService_ResetPassword(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "olga@example.com")
	ctx := context.Background()

	if err := f.svc.ResetPassword(ctx, a.ID, "weak"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, a.ID, "NewSecret456?"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if _, err := f.svc.Login(ctx, a.Email, goodPassword); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := f.svc.Login(ctx, a.Email, "NewSecret456?"); err != nil {
		t.Fatalf("new password must work, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "missing", "NewSecret456?"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountService_Delete_TrueThenFalse(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "pia@example.com")

	deleted, err := f.svc.Delete(context.Background(), a.ID)
	if err != nil || !deleted {
		t.Fatalf("first delete: expected (true, nil), got (%v, %v)", deleted, err)
	}
	deleted, err = f.svc.Delete(context.Background(), a.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: expected (false, nil), got (%v, %v)", deleted, err)
	}
	if _, err := f.svc.GetByID(context.Background(), a.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound after delete, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Lookups and listing
// ---------------------------------------------------------------------------

func TestAccountService_Getters(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "quinn@example.com")
	ctx := context.Background()

	if got, err := f.svc.GetByEmail(ctx, "QUINN@example.com"); err != nil || got.ID != a.ID {
		t.Fatalf("GetByEmail: got (%v, %v)", got, err)
	}
	if got, err := f.svc.GetByNickname(ctx, a.Nickname); err != nil || got.ID != a.ID {
		t.Fatalf("GetByNickname: got (%v, %v)", got, err)
	}
	if _, err := f.svc.GetByNickname(ctx, "nobody"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountService_List_DisjointPages(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 50; i++ {
		f.register(t, fmt.Sprintf("user%02d@example.com", i))
	}
	ctx := context.Background()

	seen := make(map[string]bool)
	var order []string
	for skip := 0; skip < 50; skip += 10 {
		page, err := f.svc.List(ctx, skip, 10)
		if err != nil {
			t.Fatalf("List(%d, 10) returned error: %v", skip, err)
		}
		if len(page.Items) != 10 || page.Total != 50 {
			t.Fatalf("unexpected page: %d items, total %d", len(page.Items), page.Total)
		}
		for _, a := range page.Items {
			if seen[a.ID] {
				t.Fatalf("account %s appeared on two pages", a.ID)
			}
			seen[a.ID] = true
			order = append(order, a.Email)
		}
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 distinct accounts, got %d", len(seen))
	}
	if order[0] != "user00@example.com" || order[49] != "user49@example.com" {
		t.Fatalf("pages must follow creation order, got %s..%s", order[0], order[49])
	}

	// Same query twice yields the same page.
	p1, _ := f.svc.List(ctx, 20, 10)
	p2, _ := f.svc.List(ctx, 20, 10)
	for i := range p1.Items {
		if p1.Items[i].ID != p2.Items[i].ID {
			t.Fatalf("listing is not deterministic at index %d", i)
		}
	}
}

func TestAccountService_List_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.List(ctx, -1, 10); !errors.Is(err, domain.ErrInvalidPagination) {
		t.Fatalf("expected ErrInvalidPagination for negative skip, got %v", err)
	}
	if _, err := f.svc.List(ctx, 0, -5); !errors.Is(err, domain.ErrInvalidPagination) {
		t.Fatalf("expected ErrInvalidPagination for negative limit, got %v", err)
	}

	page, err := f.svc.List(ctx, 0, 0)
	if err != nil || page.Limit != defaultListLimit {
		t.Fatalf("expected default limit %d, got %+v (%v)", defaultListLimit, page, err)
	}
	page, err = f.svc.List(ctx, 0, 1000)
	if err != nil || page.Limit != maxListLimit {
		t.Fatalf("expected capped limit %d, got %+v (%v)", maxListLimit, page, err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected empty page on empty store")
	}
}
