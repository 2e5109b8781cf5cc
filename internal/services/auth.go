// Package services contains the business logic behind the HTTP and realtime surfaces.
package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropcart/backend/internal/models"
)

// Claims is the JWT payload. The token is only a pointer to a session row;
// the row decides whether the session is still live.
type Claims struct {
	UserID    string      `json:"uid"`
	Role      models.Role `json:"role"`
	SessionID string      `json:"sid"`
	jwt.RegisteredClaims
}

// AuthService signs and verifies session tokens.
type AuthService struct {
	secret []byte
}

// NewAuthService creates an AuthService with the given signing secret.
func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT for identity that expires with its session.
func (s *AuthService) GenerateToken(identity models.Identity, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:    identity.UserID,
		Role:      identity.Role,
		SessionID: identity.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dropcart",
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken verifies the JWT signature and expiry, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
