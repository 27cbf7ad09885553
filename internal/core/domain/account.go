package domain

import (
	"strings"
	"time"
)

// Role is the authorization tier of an account.
type Role string

const (
	RoleAuthenticated Role = "AUTHENTICATED"
	RoleManager       Role = "MANAGER"
	RoleAdmin         Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAuthenticated, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Account is the central aggregate: a local-credential identity with its
// verification and lockout state.
type Account struct {
	ID                  string     `json:"id"`
	Nickname            string     `json:"nickname"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	Bio                 string     `json:"bio,omitempty"`
	ProfilePictureURL   string     `json:"profile_picture_url,omitempty"`
	Role                Role       `json:"role"`
	EmailVerified       bool       `json:"email_verified"`
	VerificationToken   string     `json:"-"`
	IsLocked            bool       `json:"is_locked"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// AccountPatch is a partial update. Nil fields are left untouched.
type AccountPatch struct {
	Nickname          *string
	Email             *string
	PasswordHash      *string
	FirstName         *string
	LastName          *string
	Bio               *string
	ProfilePictureURL *string
	Role              *Role
	EmailVerified     *bool
	VerificationToken *string // empty string clears the token
	UpdatedAt         time.Time
}

// Empty reports whether the patch changes nothing besides UpdatedAt.
func (p AccountPatch) Empty() bool {
	return p.Nickname == nil && p.Email == nil && p.PasswordHash == nil &&
		p.FirstName == nil && p.LastName == nil && p.Bio == nil &&
		p.ProfilePictureURL == nil && p.Role == nil && p.EmailVerified == nil &&
		p.VerificationToken == nil
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
