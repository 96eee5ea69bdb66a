package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenExpiry = 24 * time.Hour

	// Verified tokens are cached briefly so every envelope on a busy
	// connection does not pay for a signature check. The TTL is kept
	// well below any token lifetime.
	verifiedCacheTTL = time.Minute
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. The user id lives in the "id" claim.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret      string        `json:"secret"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

// AuthService issues and verifies the bearer tokens carried in the
// websocket URL and the HTTP API.
type AuthService struct {
	Config
	verified geche.Geche[string, string]
	now      func() time.Time
}

func NewAuthService(ctx context.Context, config Config) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:   config,
		verified: geche.NewMapTTLCache[string, string](ctx, verifiedCacheTTL, time.Minute),
		now:      time.Now,
	}, nil
}

// Issue signs a token for the given user.
func (as *AuthService) Issue(userID, email string) (string, error) {
	now := as.now()
	claims := Claims{
		ID:    userID,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.TokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the user id
// it was issued for. All failure modes collapse into ErrInvalidToken.
func (as *AuthService) Verify(tokenString string) (string, error) {
	if userID, err := as.verified.Get(tokenString); err == nil {
		return userID, nil
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(as.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return as.now() }))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ID == "" {
		return "", ErrInvalidToken
	}

	as.verified.Set(tokenString, claims.ID)

	return claims.ID, nil
}
