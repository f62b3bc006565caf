package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/platform/logger"
)

// AccessTokenType is the value of the "type" claim on access tokens.
const AccessTokenType = "access"

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrWrongTokenType or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the verified identity carried by an access token.
type Claims struct {
	// Subject identifies the caller the token was issued for.
	Subject   string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// tokenClaims is the wire form of the claims
type tokenClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// hmacVerifier validates HMAC-SHA256 signed tokens.
type hmacVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration
}

var _ TokenVerifier = (*hmacVerifier)(nil)

// NewTokenVerifier creates a TokenVerifier for tokens signed with the
// configured secret.
func NewTokenVerifier(cfg config.AuthConfig) (TokenVerifier, error) {
	return newVerifier(cfg.JWTSecret, time.Now)
}

func newVerifier(secret string, now func() time.Time) (*hmacVerifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &hmacVerifier{
		signingKey: []byte(secret),
		timeFunc:   now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// ValidateToken implements TokenVerifier.
func (v *hmacVerifier) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := v.timeFunc()
	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}
	if claims.TokenType != AccessTokenType {
		log.Debug("token validation failed: wrong token type",
			"expected", AccessTokenType,
			"actual", claims.TokenType)
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	out := &Claims{
		Subject:   claims.Subject,
		TokenType: claims.TokenType,
		ID:        claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
