package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified JWT claims of an inbound bearer token. Tokens are
// minted elsewhere; this service only verifies them.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenID returns the stable identifier used by the revocation list: the jti
// claim when present, otherwise subject + "_" + issued-at (unix seconds).
func (c *Claims) TokenID() string {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id
	}
	var iat int64
	if c.IssuedAt != nil {
		iat = c.IssuedAt.Unix()
	}
	return c.Subject + "_" + strconv.FormatInt(iat, 10)
}

// ParseToken verifies signature and structure. Malformed and expired tokens
// fail with distinct codes so callers can report them separately.
func ParseToken(raw string, secret []byte, issuer string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewError(CodeTokenMalformed, "token is empty")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewError(CodeTokenExpired, "token has expired")
		}
		return nil, NewError(CodeTokenMalformed, "token could not be verified")
	}
	if !parsed.Valid {
		return nil, NewError(CodeTokenMalformed, "token could not be verified")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, NewError(CodeTokenMalformed, "subject claim is missing")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, NewError(CodeTokenMalformed, "timestamp claims are missing")
	}
	if issuer != "" && claims.Issuer != issuer {
		return nil, NewError(CodeTokenMalformed, "unexpected issuer")
	}
	return claims, nil
}
