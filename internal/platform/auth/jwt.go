package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"beacon/internal/platform/config"
)

// Claims is the caller identity the core consumes. Issuance lives in the
// external security gate; this service only validates bearer credentials.
type Claims struct {
	IdentityID string   `json:"uid"`
	Email      string   `json:"email"`
	Role       string   `json:"role"`
	Scopes     []string `json:"scp"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg}
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GenerateToken mints a short-lived token. Test fixtures and local tooling
// use it; production tokens come from the external issuer sharing the secret.
func (s *TokenService) GenerateToken(identityID, email, role string) (string, error) {
	claims := Claims{
		IdentityID: identityID,
		Email:      email,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "beacon",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}
