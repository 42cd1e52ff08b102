// Package auth inspects the identity provider's session token.
//
// The client never verifies signatures; the backend does. It only reads the
// claims to avoid sending a request that is certain to be rejected.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"one-plate/internal/errs"
)

// Leeway tolerates small clock drift when checking expiry.
const Leeway = 30 * time.Second

// Claims are the parts of the token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	Opaque    bool
}

// Inspect decodes the token's claims without verifying the signature.
// Tokens that are not JWTs are reported as Opaque with no expiry.
func Inspect(token string) Claims {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{Opaque: true}
	}
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c
}

// Check returns an Unauthorized error if the token is missing or expired at now.
func Check(token string, now time.Time) error {
	if token == "" {
		return errs.E(errs.Unauthorized, "auth", "not signed in")
	}
	c := Inspect(token)
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt.Add(Leeway)) {
		return errs.E(errs.Unauthorized, "auth", "session expired")
	}
	return nil
}

// Issue signs an HS256 token for subject. Used by the development backend.
func Issue(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(secret)
}

// Verify checks an HS256 token's signature and expiry and returns its subject.
func Verify(secret []byte, token string) (string, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(Leeway))
	if err != nil {
		return "", err
	}
	if rc.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return rc.Subject, nil
}
