package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// A key set is refetched after keyTTL, or earlier when a token names a kid
// the set does not hold, but never more often than keyRefetchInterval.
const (
	keyTTL             = 10 * time.Minute
	keyRefetchInterval = 30 * time.Second
	jwksFetchTimeout   = 8 * time.Second
)

var ErrUnknownKey = errors.New("no signing key for token")

// JWKSVerifier checks RS256 tokens issued by an OpenID provider such as
// Keycloak against the provider's published signing keys.
type JWKSVerifier struct {
	issuer   string
	audience string
	keys     *keySet
}

// NewJWKSVerifier creates a verifier for issuer. An empty jwksURL uses the
// Keycloak certs endpoint under issuer.
func NewJWKSVerifier(issuer, jwksURL, audience string) (*JWKSVerifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("issuer not set")
	}
	if jwksURL == "" {
		jwksURL = strings.TrimRight(issuer, "/") + "/protocol/openid-connect/certs"
	}
	return &JWKSVerifier{
		issuer:   issuer,
		audience: audience,
		keys: &keySet{
			url:    jwksURL,
			client: &http.Client{Timeout: jwksFetchTimeout},
			now:    time.Now,
		},
	}, nil
}

func (v *JWKSVerifier) VerifyToken(ctx context.Context, tokenStr string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return parseClaims(tokenStr, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.lookup(ctx, kid)
	}, opts)
}

// keySet caches the provider's RS256 signing keys by kid. Lookups hold the
// lock across a fetch so concurrent control requests trigger one request
// to the provider.
type keySet struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (s *keySet) lookup(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: header has no kid", ErrUnknownKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	age := now.Sub(s.fetchedAt)
	key, ok := s.keys[kid]
	switch {
	case ok && age < keyTTL:
		return key, nil
	case !ok && s.keys != nil && age < keyRefetchInterval:
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	keys, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.keys, s.fetchedAt = keys, now
	if key, ok = keys[kid]; !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return key, nil
}

func (s *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("jwks decode: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !k.signsRS256() {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return nil, err
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks %s: no RS256 signing keys", s.url)
	}
	return keys, nil
}

// jwk is one entry of a JSON Web Key Set.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// signsRS256 filters out encryption keys and non-RSA keys, which providers
// publish alongside the signing key.
func (k jwk) signsRS256() bool {
	return k.Kty == "RSA" && k.Kid != "" &&
		(k.Use == "" || k.Use == "sig") &&
		(k.Alg == "" || k.Alg == "RS256")
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("jwk %s: bad modulus", k.Kid)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s: bad exponent", k.Kid)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > math.MaxInt32 {
		return nil, fmt.Errorf("jwk %s: exponent out of range", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
