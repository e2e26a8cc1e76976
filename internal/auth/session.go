package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// Session identifies the authenticated caller. Identity issuance (signup,
// login, token refresh) lives in the external auth service; this package only
// verifies what that service minted.
type Session struct {
	UserID string
	Role   string // "passenger", "driver" or "admin"
}

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session token")
)

// Verifier turns a bearer token into a Session.
type Verifier interface {
	Verify(token string) (Session, error)
}

type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens issued by the auth service.
// The subject claim carries the user id.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return Session{}, ErrInvalidSession
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return Session{}, ErrInvalidSession
	}
	return Session{UserID: c.Subject, Role: c.Role}, nil
}
