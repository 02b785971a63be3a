package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience marks tokens that may be used against the read status API.
const Audience = "qlvb-read-status"

var ErrNoUser = errors.New("token has no user")

// Claims is the JWT payload issued by the document API for a signed-in user.
type Claims struct {
	UserID int64 `json:"user_id,string"`
	jwt.RegisteredClaims
}

// TokenService verifies access tokens signed with the shared HMAC secret.
// Tokens are normally issued by the document API; GenerateAccessToken exists
// for operators and tests.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

// NewTokenService creates a TokenService with the given HMAC secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    15 * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithAudience(Audience),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// WithExpiry returns a copy of the service that issues tokens valid for d.
func (ts *TokenService) WithExpiry(d time.Duration) *TokenService {
	cp := *ts
	cp.ttl = d
	return &cp
}

// GenerateAccessToken signs a token for userID scoped to the read status API.
func (ts *TokenService) GenerateAccessToken(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken checks signature, expiry and audience and returns the
// claims of a token that names a user.
func (ts *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := ts.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return ts.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if claims.UserID <= 0 {
		return nil, ErrNoUser
	}
	return claims, nil
}
