// Package policy holds the account policy engine: password strength rules,
// credential hashing, and generation of verification tokens and nicknames.
//
// Nothing in this package performs I/O on its own. GenerateUniqueNickname is
// the only operation that reaches outside, through the existence check the
// caller passes in.
package policy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/account-service/internal/core/domain"
)

const (
	DefaultMinLength        = 8
	DefaultSymbols          = `!@#$%^&*(),.?":{}|<>`
	DefaultTokenBytes       = 16
	DefaultNicknamePrefix   = "user_"
	DefaultNicknameSuffix   = 4
	DefaultNicknameAttempts = 10
	minTokenBytes           = 16
	maxBcryptPasswordLength = 72
)

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	Symbols       string

	BcryptCost int

	TokenBytes int

	NicknamePrefix      string
	NicknameSuffixBytes int
	NicknameMaxAttempts int
}

// DefaultConfig enables every character-class rule.
func DefaultConfig() Config {
	return Config{
		MinLength:           DefaultMinLength,
		RequireUpper:        true,
		RequireLower:        true,
		RequireDigit:        true,
		RequireSymbol:       true,
		Symbols:             DefaultSymbols,
		BcryptCost:          bcrypt.DefaultCost,
		TokenBytes:          DefaultTokenBytes,
		NicknamePrefix:      DefaultNicknamePrefix,
		NicknameSuffixBytes: DefaultNicknameSuffix,
		NicknameMaxAttempts: DefaultNicknameAttempts,
	}
}

// ExistsFunc reports whether a nickname is already taken.
type ExistsFunc func(ctx context.Context, nickname string) (bool, error)

// Engine evaluates password policy and produces credentials and tokens.
type Engine struct {
	cfg Config
}

// NewEngine normalises cfg and returns an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.Symbols == "" {
		cfg.Symbols = DefaultSymbols
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenBytes < minTokenBytes {
		cfg.TokenBytes = minTokenBytes
	}
	if cfg.NicknamePrefix == "" {
		cfg.NicknamePrefix = DefaultNicknamePrefix
	}
	if cfg.NicknameSuffixBytes <= 0 {
		cfg.NicknameSuffixBytes = DefaultNicknameSuffix
	}
	if cfg.NicknameMaxAttempts <= 0 {
		cfg.NicknameMaxAttempts = DefaultNicknameAttempts
	}
	return &Engine{cfg: cfg}
}

// ValidatePasswordStrength reports whether password satisfies every enabled
// rule. It never errors.
func (e *Engine) ValidatePasswordStrength(password string) bool {
	if len([]rune(password)) < e.cfg.MinLength {
		return false
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(e.cfg.Symbols, r) {
			symbol = true
		}
	}

	if e.cfg.RequireUpper && !upper {
		return false
	}
	if e.cfg.RequireLower && !lower {
		return false
	}
	if e.cfg.RequireDigit && !digit {
		return false
	}
	if e.cfg.RequireSymbol && !symbol {
		return false
	}
	return true
}

// HashPassword returns a salted bcrypt hash of plain.
func (e *Engine) HashPassword(plain string) (string, error) {
	if len(plain) > maxBcryptPasswordLength {
		return "", domain.ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), e.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", domain.ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares plain against a stored bcrypt hash in constant time.
func (e *Engine) VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// GenerateVerificationToken returns a hex encoded random token of at least
// 128 bits.
func (e *Engine) GenerateVerificationToken() (string, error) {
	return randomHex(e.cfg.TokenBytes)
}

// GenerateUniqueNickname samples prefix+random suffix candidates until exists
// reports one as free. It gives up after NicknameMaxAttempts collisions.
func (e *Engine) GenerateUniqueNickname(ctx context.Context, exists ExistsFunc) (string, error) {
	for i := 0; i < e.cfg.NicknameMaxAttempts; i++ {
		suffix, err := randomHex(e.cfg.NicknameSuffixBytes)
		if err != nil {
			return "", err
		}
		candidate := e.cfg.NicknamePrefix + suffix

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("nickname lookup: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", domain.ErrNicknameSpaceExhausted
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
