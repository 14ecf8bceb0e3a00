package console

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeJWT    AuthMode = "jwt"
)

const defaultTokenTTL = 5 * time.Minute

type AuthConfig struct {
	Mode      AuthMode      `yaml:"mode"`
	Token     string        `yaml:"token"`
	JWTSecret string        `yaml:"jwt_secret"`
	Subject   string        `yaml:"subject"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

func (a AuthConfig) Validate() error {
	switch a.Mode {
	case "", AuthModeNone:
		return nil
	case AuthModeBearer:
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("auth token is required when auth mode is %q", AuthModeBearer)
		}
		return nil
	case AuthModeJWT:
		if strings.TrimSpace(a.JWTSecret) == "" {
			return fmt.Errorf("jwt secret is required when auth mode is %q", AuthModeJWT)
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode %q", a.Mode)
	}
}

// RequestEditor returns the hook that authenticates outgoing requests, or nil
// when no auth is configured.
func (a AuthConfig) RequestEditor() (blogclient.RequestEditorFn, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch a.Mode {
	case AuthModeBearer:
		token := strings.TrimSpace(a.Token)
		return func(_ context.Context, req *http.Request) error {
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		}, nil
	case AuthModeJWT:
		return func(_ context.Context, req *http.Request) error {
			token, err := a.MintToken(time.Now())
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		}, nil
	default:
		return nil, nil
	}
}

// MintToken signs a short-lived HS256 token.
func (a AuthConfig) MintToken(now time.Time) (string, error) {
	ttl := a.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	subject := strings.TrimSpace(a.Subject)
	if subject == "" {
		subject = "blogconsole"
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
