// Package validation wraps go-playground/validator with the custom rules used
// by account payloads. The same Validate instance backs echo's c.Validate and
// the service layer's structural checks.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Get returns the shared validator, registering custom rules on first use.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
			return nicknamePattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// ValidNickname reports whether s is an acceptable nickname.
func ValidNickname(s string) bool {
	return nicknamePattern.MatchString(s)
}

// Struct validates s and flattens any field errors into one message.
// A nil return means s is structurally valid.
func Struct(s any) error {
	if err := Get().Struct(s); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return errors.New(Message(ve))
		}
		return err
	}
	return nil
}

// Message joins the human-readable form of every field error.
func Message(ve validator.ValidationErrors) string {
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldError(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "nickname":
		return field + " must be 3-32 letters, digits, '_' or '-'"
	case "url", "http_url":
		return field + " must be a valid http(s) URL"
	case "uuid":
		return field + " must be a valid UUID"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// toSnake turns a Go field name such as ProfilePictureURL into
// profile_picture_url so messages match the JSON payload.
func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		isUpper := r >= 'A' && r <= 'Z'
		if isUpper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if isUpper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
