package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/policy"
	"github.com/99minutos/account-service/internal/core/ports"
	"github.com/99minutos/account-service/internal/pkg/metrics"
	"github.com/99minutos/account-service/internal/pkg/validation"
)

const (
	defaultMaxLoginAttempts = 5
	defaultListLimit        = 20
	maxListLimit            = 100
	defaultNotifyTimeout    = 10 * time.Second
	defaultResendCooldown   = 5 * time.Minute

	warnVerificationEmail = "verification email could not be sent"
)

// Config holds the lifecycle tunables.
type Config struct {
	MaxLoginAttempts int
	DefaultListLimit int
	MaxListLimit     int
	NotifyTimeout    time.Duration
	ResendCooldown   time.Duration
}

// AccountService implements ports.AccountService: registration, lookups,
// the login state machine, lock management and email verification.
type AccountService struct {
	repo     ports.AccountRepository
	policy   *policy.Engine
	notifier ports.Notifier
	queue    ports.NotificationQueue
	throttle ports.NotificationThrottle
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService wires the lifecycle manager. throttle may be nil, in
// which case verification resends are never rate limited.
func NewAccountService(
	repo ports.AccountRepository,
	engine *policy.Engine,
	notifier ports.Notifier,
	queue ports.NotificationQueue,
	throttle ports.NotificationThrottle,
	cfg Config,
	log zerolog.Logger,
) *AccountService {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = maxListLimit
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = defaultListLimit
	}
	if cfg.DefaultListLimit > cfg.MaxListLimit {
		cfg.DefaultListLimit = cfg.MaxListLimit
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = defaultResendCooldown
	}
	return &AccountService{
		repo:     repo,
		policy:   engine,
		notifier: notifier,
		queue:    queue,
		throttle: throttle,
		cfg:      cfg,
		log:      log.With().Str("component", "account_service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new account and sends the verification email. A failed
// email never rolls back the registration; it is reported as a warning.
func (s *AccountService) Create(ctx context.Context, input ports.CreateAccountInput) (*ports.CreateAccountResult, error) {
	input.Email = domain.NormalizeEmail(input.Email)

	// 1. Structural checks.
	if err := validation.Struct(input); err != nil {
		return nil, &domain.ValidationError{Reason: err.Error()}
	}
	role := input.Role
	if role == "" {
		role = domain.RoleAuthenticated
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	// 2. Password policy.
	if !s.policy.ValidatePasswordStrength(input.Password) {
		return nil, domain.ErrWeakPassword
	}

	// 3. Fast-path uniqueness. The unique index has the final word.
	if err := s.ensureEmailFree(ctx, input.Email); err != nil {
		return nil, err
	}

	// 4. Nickname: caller supplied or generated.
	nickname := input.Nickname
	if nickname != "" {
		if err := s.ensureNicknameFree(ctx, nickname); err != nil {
			return nil, err
		}
	} else {
		generated, err := s.policy.GenerateUniqueNickname(ctx, s.nicknameExists)
		if err != nil {
			return nil, s.fail("generate nickname", err)
		}
		nickname = generated
	}

	token, err := s.policy.GenerateVerificationToken()
	if err != nil {
		return nil, s.fail("generate verification token", err)
	}
	hash, err := s.policy.HashPassword(input.Password)
	if err != nil {
		return nil, s.fail("hash password", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, s.fail("generate account id", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:                id.String(),
		Nickname:          nickname,
		Email:             input.Email,
		PasswordHash:      hash,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Bio:               input.Bio,
		ProfilePictureURL: input.ProfilePictureURL,
		Role:              role,
		VerificationToken: token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// 5. Persist.
	if err := s.repo.Insert(ctx, account); err != nil {
		return nil, s.fail("insert account", err)
	}
	metrics.AccountsCreatedTotal.Inc()
	s.log.Info().Str("account_id", account.ID).Str("role", string(role)).Msg("account created")

	// 6. Verification email, detached from the caller's cancellation.
	result := &ports.CreateAccountResult{Account: account}
	if err := s.sendVerification(ctx, account); err != nil {
		result.Warnings = append(result.Warnings, warnVerificationEmail)
	}
	return result, nil
}

// Update applies a partial update. Changing the email resets verification
// and queues a fresh verification email.
func (s *AccountService) Update(ctx context.Context, id string, input ports.UpdateAccountInput) (*domain.Account, error) {
	if input.Email != nil {
		normalized := domain.NormalizeEmail(*input.Email)
		input.Email = &normalized
	}
	if err := validation.Struct(input); err != nil {
		return nil, &domain.ValidationError{Reason: err.Error()}
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail("find account", err)
	}

	patch := domain.AccountPatch{
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Bio:               input.Bio,
		ProfilePictureURL: input.ProfilePictureURL,
	}

	if input.Nickname != nil && *input.Nickname != current.Nickname {
		if err := s.ensureNicknameFree(ctx, *input.Nickname); err != nil {
			return nil, err
		}
		patch.Nickname = input.Nickname
	}

	emailChanged := input.Email != nil && *input.Email != current.Email
	if emailChanged {
		if err := s.ensureEmailFree(ctx, *input.Email); err != nil {
			return nil, err
		}
		token, err := s.policy.GenerateVerificationToken()
		if err != nil {
			return nil, s.fail("generate verification token", err)
		}
		unverified := false
		patch.Email = input.Email
		patch.EmailVerified = &unverified
		patch.VerificationToken = &token
	}

	if input.Password != nil {
		hash, err := s.hashNewPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}

	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, domain.ErrInvalidRole
		}
		patch.Role = input.Role
	}

	if patch.Empty() {
		return current, nil
	}
	patch.UpdatedAt = s.now()

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, s.fail("update account", err)
	}
	s.log.Info().Str("account_id", id).Bool("email_changed", emailChanged).Msg("account updated")

	if emailChanged {
		s.notify(ports.CategoryEmailVerification, updated)
	}
	return updated, nil
}

// Delete removes the account and reports whether one existed.
func (s *AccountService) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, s.fail("delete account", err)
	}
	if deleted {
		s.log.Info().Str("account_id", id).Msg("account deleted")
	}
	return deleted, nil
}

func (s *AccountService) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail("find account by id", err)
	}
	return account, nil
}

func (s *AccountService) GetByNickname(ctx context.Context, nickname string) (*domain.Account, error) {
	account, err := s.repo.FindByNickname(ctx, nickname)
	if err != nil {
		return nil, s.fail("find account by nickname", err)
	}
	return account, nil
}

func (s *AccountService) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	account, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, s.fail("find account by email", err)
	}
	return account, nil
}

// List returns a page ordered by creation time. A zero limit selects the
// default page size; larger limits are capped.
func (s *AccountService) List(ctx context.Context, skip, limit int) (*ports.ListAccountsResult, error) {
	if skip < 0 || limit < 0 {
		return nil, domain.ErrInvalidPagination
	}
	if limit == 0 {
		limit = s.cfg.DefaultListLimit
	}
	if limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}

	items, err := s.repo.List(ctx, skip, limit)
	if err != nil {
		return nil, s.fail("list accounts", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, s.fail("count accounts", err)
	}
	return &ports.ListAccountsResult{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

// Login runs the authentication state machine. Unknown emails and wrong
// passwords produce the same error; a locked account produces ErrAccountLocked.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)

	// 1. Resolve the account. Unknown emails still pay for a bcrypt compare.
	account, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		s.policy.VerifyPassword(password, s.dummy())
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, s.fail("find account by email", err)
	}

	// 2. Locked accounts are rejected regardless of the password.
	if account.IsLocked {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, domain.ErrAccountLocked
	}

	// 3. Wrong password: count it, lock on reaching the threshold.
	if !s.policy.VerifyPassword(password, account.PasswordHash) {
		return nil, s.recordFailure(ctx, account.ID)
	}

	// 4. Correct password: reset the counter unless a concurrent lock won.
	updated, err := s.repo.RecordSuccessfulLogin(ctx, account.ID, s.now())
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, domain.ErrAccountLocked
	case errors.Is(err, domain.ErrAccountNotFound):
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	case err != nil:
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, s.fail("record successful login", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("account_id", updated.ID).Msg("login succeeded")
	return updated, nil
}

func (s *AccountService) recordFailure(ctx context.Context, id string) error {
	updated, err := s.repo.RecordFailedLogin(ctx, id, s.cfg.MaxLoginAttempts, s.now())
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return domain.ErrAccountLocked
	case errors.Is(err, domain.ErrAccountNotFound):
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return domain.ErrInvalidCredentials
	case err != nil:
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return s.fail("record failed login", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	if updated.IsLocked {
		metrics.AccountsLockedTotal.Inc()
		s.log.Warn().
			Str("account_id", id).
			Int("failed_login_attempts", updated.FailedLoginAttempts).
			Msg("account locked after repeated failed logins")
		s.notify(ports.CategoryAccountLocked, updated)
	}
	return domain.ErrInvalidCredentials
}

// IsAccountLocked reports the lock flag. Unknown emails are not locked.
func (s *AccountService) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	account, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("find account by email", err)
	}
	return account.IsLocked, nil
}

// UnlockAccount clears the lock and the failure counter. Unlocking an
// account that is not locked succeeds.
func (s *AccountService) UnlockAccount(ctx context.Context, id string) error {
	if _, err := s.repo.Unlock(ctx, id, s.now()); err != nil {
		return s.fail("unlock account", err)
	}
	s.log.Info().Str("account_id", id).Msg("account unlocked")
	return nil
}

// ResetPassword replaces the password hash and notifies the holder.
func (s *AccountService) ResetPassword(ctx context.Context, id, newPassword string) error {
	hash, err := s.hashNewPassword(newPassword)
	if err != nil {
		return err
	}
	updated, err := s.repo.Update(ctx, id, domain.AccountPatch{PasswordHash: &hash, UpdatedAt: s.now()})
	if err != nil {
		return s.fail("reset password", err)
	}
	s.log.Info().Str("account_id", id).Msg("password reset")
	s.notify(ports.CategoryPasswordReset, updated)
	return nil
}

// VerifyEmailWithToken consumes the verification token. The token is single
// use: a second call with the same token fails.
func (s *AccountService) VerifyEmailWithToken(ctx context.Context, id, token string) error {
	if token == "" {
		return domain.ErrInvalidVerificationToken
	}
	if _, err := s.repo.ConsumeVerificationToken(ctx, id, token, s.now()); err != nil {
		return s.fail("consume verification token", err)
	}
	s.log.Info().Str("account_id", id).Msg("email verified")
	return nil
}

// ResendVerificationEmail re-sends the verification email of an unverified
// account, at most once per cooldown window. Unknown, verified and throttled
// addresses and failed sends all return nil so callers cannot tell which
// emails are registered. Only storage failures surface as errors.
func (s *AccountService) ResendVerificationEmail(ctx context.Context, email string) error {
	account, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrAccountNotFound) {
		s.log.Debug().Msg("verification resend requested for unknown email")
		return nil
	}
	if err != nil {
		return s.fail("find account by email", err)
	}
	if account.EmailVerified {
		s.log.Debug().Str("account_id", account.ID).Msg("verification resend requested for verified account")
		return nil
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, account.ID, ports.CategoryEmailVerification, s.cfg.ResendCooldown)
		if err != nil {
			s.log.Warn().Err(err).Str("account_id", account.ID).Msg("throttle check failed, sending anyway")
		} else if !allowed {
			metrics.NotificationsTotal.WithLabelValues(string(ports.CategoryEmailVerification), "throttled").Inc()
			s.log.Info().Str("account_id", account.ID).Msg("verification resend throttled")
			return nil
		}
	}

	if account.VerificationToken == "" {
		token, err := s.policy.GenerateVerificationToken()
		if err != nil {
			return s.fail("generate verification token", err)
		}
		account, err = s.repo.Update(ctx, account.ID, domain.AccountPatch{VerificationToken: &token, UpdatedAt: s.now()})
		if err != nil {
			return s.fail("store verification token", err)
		}
	}

	// sendVerification logs and counts its own failures.
	_ = s.sendVerification(ctx, account)
	return nil
}

// sendVerification delivers the verification email synchronously on a
// context that survives the caller's cancellation.
func (s *AccountService) sendVerification(ctx context.Context, account *domain.Account) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	category := string(ports.CategoryEmailVerification)
	start := time.Now()
	err := s.notifier.SendVerificationEmail(sendCtx, account)
	metrics.NotificationSendDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(category, "failed").Inc()
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("verification email failed")
		return err
	}
	metrics.NotificationsTotal.WithLabelValues(category, "sent").Inc()
	return nil
}

func (s *AccountService) notify(category ports.NotificationCategory, account *domain.Account) {
	if s.queue == nil || account == nil {
		return
	}
	s.queue.Enqueue(ports.NotificationJob{Category: category, Account: *account})
}

func (s *AccountService) hashNewPassword(password string) (string, error) {
	if !s.policy.ValidatePasswordStrength(password) {
		return "", domain.ErrWeakPassword
	}
	hash, err := s.policy.HashPassword(password)
	if err != nil {
		return "", s.fail("hash password", err)
	}
	return hash, nil
}

func (s *AccountService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrEmailTaken
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil
	default:
		return s.fail("find account by email", err)
	}
}

func (s *AccountService) ensureNicknameFree(ctx context.Context, nickname string) error {
	taken, err := s.nicknameExists(ctx, nickname)
	if err != nil {
		return s.fail("find account by nickname", err)
	}
	if taken {
		return domain.ErrNicknameTaken
	}
	return nil
}

func (s *AccountService) nicknameExists(ctx context.Context, nickname string) (bool, error) {
	_, err := s.repo.FindByNickname(ctx, nickname)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrAccountNotFound):
		return false, nil
	default:
		return false, err
	}
}

// dummy returns a hash used to equalise timing for unknown emails.
func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.policy.HashPassword("dummy-Password-1!")
		if err != nil {
			s.log.Error().Err(err).Msg("failed to prepare timing hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// fail passes classified errors through and wraps everything else as a
// logged dependency failure.
func (s *AccountService) fail(op string, err error) error {
	if domain.KindOf(err) != domain.KindDependency {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Msg("storage operation failed")
	return fmt.Errorf("%s: %w", op, err)
}
