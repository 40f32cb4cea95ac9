package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue(Identity{Username: "alice", Role: RoleEmployee})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	id, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if id.Username != "alice" || id.Role != RoleEmployee {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerify_Rejections(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	valid, err := iss.Issue(Identity{Username: "bob", Role: RoleManager})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other := NewIssuer("other-secret", time.Hour)
	if _, err := other.Verify(valid); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	if _, err := iss.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	if _, err := iss.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	expired := NewIssuer("secret", time.Hour)
	expired.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(Identity{Username: "bob", Role: RoleManager})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := iss.Verify(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_UnknownRole(t *testing.T) {
	claims := Claims{
		Username: "mallory",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewIssuer("secret", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestVerify_WrongAlgorithm(t *testing.T) {
	claims := Claims{
		Username: "mallory",
		Role:     "manager",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewIssuer("secret", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512 token, got %v", err)
	}
}

func TestIssue_UnknownRole(t *testing.T) {
	if _, err := NewIssuer("s", time.Hour).Issue(Identity{Username: "x", Role: "root"}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"employee", "manager"} {
		if r, err := ParseRole(s); err != nil || r.String() != s {
			t.Fatalf("ParseRole(%q) = %v, %v", s, r, err)
		}
	}
	if _, err := ParseRole("Manager"); err == nil {
		t.Fatalf("roles are case sensitive")
	}
}
