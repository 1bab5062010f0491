package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{JWTSecret: "test-secret-key-32bytes-long!!", Issuer: issuer})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	v := newTestVerifier(t, "")

	token, err := v.Issue("user-123", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID() != "user-123" {
		t.Errorf("UserID = %q, want user-123", claims.UserID())
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	v1 := newTestVerifier(t, "")
	v2, _ := NewVerifier(Config{JWTSecret: "secret-two-is-32-bytes-long!!!!"})

	token, _ := v1.Issue("user-1", "", time.Hour)
	if _, err := v2.Verify(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestVerify_Expired(t *testing.T) {
	v := newTestVerifier(t, "")
	token, _ := v.Issue("user-1", "", -time.Minute)
	if _, err := v.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestVerify_Issuer(t *testing.T) {
	v := newTestVerifier(t, "parley-auth")
	token, _ := v.Issue("user-1", "", time.Hour)
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("Verify with matching issuer: %v", err)
	}

	other := newTestVerifier(t, "someone-else")
	foreign, _ := other.Issue("user-1", "", time.Hour)
	if _, err := v.Verify(foreign); err == nil {
		t.Error("expected error for mismatched issuer")
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	v := newTestVerifier(t, "")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Error("expected error for alg=none token")
	}
}

func TestVerify_RequiresSubjectAndExpiry(t *testing.T) {
	v := newTestVerifier(t, "")

	noSub, _ := v.Issue("", "", time.Hour)
	if _, err := v.Verify(noSub); err == nil {
		t.Error("expected error for token without subject")
	}

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte("test-secret-key-32bytes-long!!"))
	if _, err := v.Verify(noExp); err == nil {
		t.Error("expected error for token without expiry")
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := newTestVerifier(t, "")
	if _, err := v.Verify(strings.Repeat("x", 20)); err == nil {
		t.Error("expected error for garbage token")
	}
}
