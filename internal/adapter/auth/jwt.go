// Package auth verifies bearer tokens issued by the external auth provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// UserIDClaim carries the authenticated user's id.
const UserIDClaim = "user_id"

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a Verifier. An empty secret rejects every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// UserID validates tokenStr and returns the user id claim. Every failure
// wraps domain.ErrUnauthenticated.
func (v *Verifier) UserID(tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" || len(v.secret) == 0 {
		return "", fmt.Errorf("op=auth.verify: %w", domain.ErrUnauthenticated)
	}
	token, err := jwt.Parse(tokenStr, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("op=auth.verify: %w: %v", domain.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("op=auth.verify: %w", domain.ErrUnauthenticated)
	}
	raw, _ := claims[UserIDClaim].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("op=auth.verify: %w: bad %s claim", domain.ErrUnauthenticated, UserIDClaim)
	}
	return id.String(), nil
}

// Sign issues a token for userID. It serves local tooling and tests.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("op=auth.sign: secret is empty")
	}
	now := v.now()
	claims := jwt.MapClaims{UserIDClaim: userID, "iat": now.Unix()}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("op=auth.sign: %w", err)
	}
	return s, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
