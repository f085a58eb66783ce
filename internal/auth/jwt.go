package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/roomchat/internal/core"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = fmt.Errorf("%w: invalid token", core.ErrUnauthorized)

// Claims represents JWT claims for a chat user. The subject is the user id.
// Admin tokens may manage room permissions.
type Claims struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// User returns the chat identity carried by the token.
func (c *Claims) User() core.User {
	return core.User{ID: c.Subject, FirstName: c.FirstName, LastName: c.LastName}
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken creates a new JWT token for the given user.
func GenerateToken(cfg *JWTConfig, user core.User) (string, error) {
	return generate(cfg, user, false)
}

// GenerateAdminToken is GenerateToken with the admin claim set.
func GenerateAdminToken(cfg *JWTConfig, user core.User) (string, error) {
	return generate(cfg, user, true)
}

func generate(cfg *JWTConfig, user core.User, admin bool) (string, error) {
	if user.ID == "" {
		return "", core.ErrInvalidUser
	}
	now := time.Now()
	claims := Claims{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Admin:     admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	if cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("%w: issuer", ErrInvalidToken)
	}
	if cfg.Audience != "" && !slices.Contains(claims.Audience, cfg.Audience) {
		return nil, fmt.Errorf("%w: audience", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}

// IsInvalidToken reports whether err came from token validation.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
