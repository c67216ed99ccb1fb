// Package auth verifies the bearer tokens presented to the control plane.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("token is empty")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("token lacks required role")
)

// Verifier checks a raw token and returns its claims.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// SecretVerifier checks HS256 tokens signed with a shared secret. It is the
// simple mode for boards without an identity provider.
type SecretVerifier struct {
	secret []byte
	issuer string
}

func NewSecretVerifier(secret, issuer string) *SecretVerifier {
	return &SecretVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *SecretVerifier) VerifyToken(ctx context.Context, tokenStr string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return parseClaims(tokenStr, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts)
}

// parseClaims is the verification both verifiers share: signature through
// keyFunc, then the registered claims opts require. Every failure wraps
// ErrInvalidToken.
func parseClaims(tokenStr string, keyFunc jwt.Keyfunc, opts []jwt.ParserOption) (jwt.MapClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrNoToken
	}
	opts = append(opts, jwt.WithExpirationRequired())
	token, err := jwt.Parse(tokenStr, keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues an HS256 token for subject, valid for ttl. pipelinectl uses
// it to talk to a board configured with the same secret.
func (v *SecretVerifier) Sign(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"roles": roles,
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// HasRole reports whether claims grant role, either in a top-level "roles"
// list or in Keycloak's realm_access.roles.
func HasRole(claims jwt.MapClaims, role string) bool {
	if containsRole(claims["roles"], role) {
		return true
	}
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		return containsRole(ra["roles"], role)
	}
	return false
}

func containsRole(v interface{}, role string) bool {
	list, ok := v.([]interface{})
	if !ok {
		return false
	}
	for _, r := range list {
		if s, _ := r.(string); s == role {
			return true
		}
	}
	return false
}

// ExtractBearerToken reads the token from the Authorization header, or from
// the "token" query parameter for websocket clients that cannot set headers.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
			return t, nil
		}
		return "", fmt.Errorf("Authorization header missing")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("Authorization header must be Bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Authenticate verifies the request's bearer token and, when role is set,
// that the token grants it. A nil verifier lets every request through.
func Authenticate(v Verifier, role string, r *http.Request) error {
	if v == nil {
		return nil
	}
	tokenStr, err := ExtractBearerToken(r)
	if err != nil {
		return err
	}
	claims, err := v.VerifyToken(r.Context(), tokenStr)
	if err != nil {
		return err
	}
	if role != "" && !HasRole(claims, role) {
		return fmt.Errorf("%w: %s", ErrForbidden, role)
	}
	return nil
}

// FromEnv picks the verifier configured in the environment: a shared secret
// (CONTROL_JWT_SECRET) takes precedence over Keycloak (KEYCLOAK_ISSUER).
// Neither set means no authentication.
func FromEnv() (Verifier, error) {
	if secret := strings.TrimSpace(os.Getenv("CONTROL_JWT_SECRET")); secret != "" {
		return NewSecretVerifier(secret, strings.TrimSpace(os.Getenv("CONTROL_JWT_ISSUER"))), nil
	}
	issuer := strings.TrimSpace(os.Getenv("KEYCLOAK_ISSUER"))
	if issuer == "" {
		return nil, errors.New("neither CONTROL_JWT_SECRET nor KEYCLOAK_ISSUER set")
	}
	v, err := NewJWKSVerifier(issuer,
		strings.TrimSpace(os.Getenv("KEYCLOAK_JWKS_URL")),
		strings.TrimSpace(os.Getenv("KEYCLOAK_AUDIENCE")))
	if err != nil {
		return nil, err
	}
	return v, nil
}
