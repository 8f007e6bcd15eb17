// Package auth verifies the bearer tokens that identify the acting user.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/expense-approval/internal"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the acting user in the registered subject.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject as a positive user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// JWTTokenManager signs and verifies HS256 access tokens.
type JWTTokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTTokenManager(secret, issuer string, ttl time.Duration) *JWTTokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTTokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs an access token for userID.
func (m *JWTTokenManager) Issue(userID int64) (string, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and issuer, and returns the user id in the
// subject.
func (m *JWTTokenManager) Verify(tokenString string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, internal.ErrTokenExpired.WithCause(err)
		}
		return 0, internal.ErrInvalidToken.WithCause(err)
	}
	if !token.Valid {
		return 0, internal.ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return 0, internal.ErrInvalidToken.WithCause(err)
	}
	return userID, nil
}
