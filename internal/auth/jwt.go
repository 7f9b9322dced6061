package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer              = "watchtrail"
	AccessTokenDuration = 15 * time.Minute
)

// Scopes. An owner token may call every owner route; a segments:read token
// only reads recorded segments, which is what the offline CLI needs.
const (
	ScopeOwner        = "owner"
	ScopeSegmentsRead = "segments:read"
)

var ErrUnknownScope = errors.New("unknown token scope")

// Claims carry the owning user in the standard subject claim.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func GenerateAccessToken(secret string, userID string) (string, error) {
	return IssueToken(secret, userID, ScopeOwner, AccessTokenDuration)
}

func IssueToken(secret, userID, scope string, ttl time.Duration) (string, error) {
	if scope != ScopeOwner && scope != ScopeSegmentsRead {
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token lifetime must be positive, got %v", ttl)
	}

	now := time.Now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ValidateToken(secret string, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
