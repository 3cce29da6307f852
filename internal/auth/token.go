// Package auth issues and verifies the bearer credentials used by the
// storefront API: HS256 JWTs carrying the user id and role.
package auth

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v4"

	"github.com/kirashop/storefront/internal/domain/user"
)

// ErrInvalidToken is returned for missing, malformed, expired, or otherwise
// unverifiable bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal extracted from a verified token.
type Identity struct {
	UserID int64
	Role   user.Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == user.RoleAdmin
}

// Tokens issues and verifies signed bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a token service signing with the given HS256 secret.
// Tokens expire after ttl.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl}
}

// Issue signs a bearer token for the given user.
func (t *Tokens) Issue(u *user.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(u.ID, 10),
		"role": string(u.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(t.ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the identity it
// carries.
func (t *Tokens) Verify(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrInvalidToken
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Role: user.Role(role)}, nil
}
