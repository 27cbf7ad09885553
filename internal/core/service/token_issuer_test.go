package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/account-service/internal/core/domain"
)

func TestJWTIssuer_Issue(t *testing.T) {
	issuer := NewJWTIssuer("secret", time.Hour)
	fixed := time.Now()
	issuer.now = func() time.Time { return fixed }

	token, err := issuer.Issue(&domain.Account{ID: "acc-1", Email: "alice@example.com", Role: domain.RoleManager})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["sub"] != "acc-1" || claims["email"] != "alice@example.com" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if claims["role"] != string(domain.RoleManager) {
		t.Fatalf("expected role %s, got %v", domain.RoleManager, claims["role"])
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp.Unix() != fixed.Add(time.Hour).Unix() {
		t.Fatalf("unexpected exp: %v (%v)", exp, err)
	}
}

func TestJWTIssuer_WrongSecretRejected(t *testing.T) {
	token, err := NewJWTIssuer("secret", time.Hour).Issue(&domain.Account{ID: "acc-1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	_, err = jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("other"), nil
	})
	if err == nil {
		t.Fatalf("expected signature error")
	}
}
