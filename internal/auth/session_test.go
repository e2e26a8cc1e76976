package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, secret, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier("topsecret")
	sess, err := v.Verify(signToken(t, "topsecret", "u1", "driver"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.UserID != "u1" || sess.Role != "driver" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier("topsecret")

	if _, err := v.Verify(signToken(t, "wrongsecret", "u1", "driver")); err != ErrInvalidSession {
		t.Fatalf("wrong secret err = %v", err)
	}
	if _, err := v.Verify("not-a-token"); err != ErrInvalidSession {
		t.Fatalf("garbage err = %v", err)
	}
	if _, err := v.Verify(signToken(t, "topsecret", "", "driver")); err != ErrInvalidSession {
		t.Fatalf("empty subject err = %v", err)
	}
}
