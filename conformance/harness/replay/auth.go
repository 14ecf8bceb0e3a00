package replay

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeJWT    AuthMode = "jwt"
)

type AuthConfig struct {
	Mode      AuthMode `yaml:"mode"`
	Token     string   `yaml:"token,omitempty"`
	JWTSecret string   `yaml:"jwt_secret,omitempty"`
}

// SubjectFromAuthHeader verifies the Authorization header against cfg and
// returns the caller's subject.
func SubjectFromAuthHeader(authorizationHeader string, cfg AuthConfig) (string, error) {
	switch cfg.Mode {
	case "", AuthModeNone:
		return "anonymous", nil
	}

	authorization := strings.TrimSpace(authorizationHeader)
	if !strings.HasPrefix(authorization, "Bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))

	switch cfg.Mode {
	case AuthModeBearer:
		if tokenString != cfg.Token {
			return "", fmt.Errorf("invalid bearer token")
		}
		return "token", nil
	case AuthModeJWT:
		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unsupported token signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return "", fmt.Errorf("invalid bearer token")
		}
		if claims.Subject == "" {
			return "unknown", nil
		}
		return claims.Subject, nil
	default:
		return "", fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
