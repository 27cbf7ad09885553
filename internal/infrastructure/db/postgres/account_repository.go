package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/99minutos/account-service/internal/core/domain"
)

const (
	uniqueViolation = "23505"

	constraintEmail    = "accounts_email_key"
	constraintNickname = "accounts_nickname_key"
)

const accountColumns = `id, nickname, email, password_hash, first_name, last_name, bio,
       profile_picture_url, role, email_verified, verification_token, is_locked,
       failed_login_attempts, last_login_at, created_at, updated_at`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a         domain.Account
		role      string
		token     sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Nickname, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Bio,
		&a.ProfilePictureURL, &role, &a.EmailVerified, &token, &a.IsLocked,
		&a.FailedLoginAttempts, &lastLogin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.VerificationToken = token.String
	if lastLogin.Valid {
		ts := lastLogin.Time.UTC()
		a.LastLoginAt = &ts
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, "id", id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, "email", email)
}

func (r *AccountRepository) FindByNickname(ctx context.Context, nickname string) (*domain.Account, error) {
	return r.findOne(ctx, "nickname", nickname)
}

// findOne looks an account up by one of the fixed key columns above.
func (r *AccountRepository) findOne(ctx context.Context, column, value string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE ` + column + ` = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Insert(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query :=
		`INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Nickname, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Bio,
		a.ProfilePictureURL, string(a.Role), a.EmailVerified, nullString(a.VerificationToken), a.IsLocked,
		a.FailedLoginAttempts, nullTime(a.LastLoginAt), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *AccountRepository) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, patch.UpdatedAt}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Nickname != nil {
		add("nickname", *patch.Nickname)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.ProfilePictureURL != nil {
		add("profile_picture_url", *patch.ProfilePictureURL)
	}
	if patch.Role != nil {
		add("role", string(*patch.Role))
	}
	if patch.EmailVerified != nil {
		add("email_verified", *patch.EmailVerified)
	}
	if patch.VerificationToken != nil {
		add("verification_token", nullString(*patch.VerificationToken))
	}

	query :=
		`UPDATE accounts SET ` + strings.Join(sets, ", ") + `
		 WHERE id = $1
		 RETURNING ` + accountColumns

	a, err := r.updateOne(ctx, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}

func (r *AccountRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *AccountRepository) List(ctx context.Context, skip, limit int) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// RecordFailedLogin relies on SET expressions seeing the pre-update row, so
// the lock flag is derived from the same increment.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, at time.Time) (*domain.Account, error) {
	query :=
		`UPDATE accounts
		 SET failed_login_attempts = failed_login_attempts + 1,
		     is_locked = (failed_login_attempts + 1 >= $2),
		     updated_at = $3
		 WHERE id = $1 AND is_locked = FALSE
		 RETURNING ` + accountColumns

	a, err := r.updateOne(ctx, query, id, threshold, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.guardFailure(ctx, id, domain.ErrAccountLocked)
	}
	return a, err
}

func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) (*domain.Account, error) {
	query :=
		`UPDATE accounts
		 SET failed_login_attempts = 0,
		     last_login_at = $2,
		     updated_at = $2
		 WHERE id = $1 AND is_locked = FALSE
		 RETURNING ` + accountColumns

	a, err := r.updateOne(ctx, query, id, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.guardFailure(ctx, id, domain.ErrAccountLocked)
	}
	return a, err
}

func (r *AccountRepository) Unlock(ctx context.Context, id string, at time.Time) (*domain.Account, error) {
	query :=
		`UPDATE accounts
		 SET is_locked = FALSE,
		     failed_login_attempts = 0,
		     updated_at = $2
		 WHERE id = $1
		 RETURNING ` + accountColumns

	a, err := r.updateOne(ctx, query, id, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}

func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, id, token string, at time.Time) (*domain.Account, error) {
	query :=
		`UPDATE accounts
		 SET email_verified = TRUE,
		     verification_token = NULL,
		     updated_at = $3
		 WHERE id = $1 AND verification_token = $2 AND email_verified = FALSE
		 RETURNING ` + accountColumns

	a, err := r.updateOne(ctx, query, id, token, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.guardFailure(ctx, id, domain.ErrInvalidVerificationToken)
	}
	return a, err
}

// updateOne runs an UPDATE ... RETURNING. sql.ErrNoRows is passed through
// unwrapped so callers can resolve the guard.
func (r *AccountRepository) updateOne(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, mapWriteError(err)
	}
	return a, nil
}

func (r *AccountRepository) guardFailure(ctx context.Context, id string, guardErr error) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return domain.ErrAccountNotFound
	}
	return guardErr
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintNickname:
			return domain.ErrNicknameTaken
		case constraintEmail:
			return domain.ErrEmailTaken
		}
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
