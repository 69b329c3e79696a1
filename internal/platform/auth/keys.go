package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// KeyProvider resolves an RSA signing key by key id.
type KeyProvider interface {
	Key(kid string) (*rsa.PublicKey, error)
	// Invalidate drops any cached key material so the next lookup refetches.
	Invalidate()
}

// JWKSResponse is the document served by a JWKS endpoint.
type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

// JWKSKey is a single JSON Web Key.
type JWKSKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSKeyProvider fetches a provider's signing key set once and memoizes it
// for the rest of the process lifetime. Key rotation is handled only through
// Invalidate; there is no TTL. Concurrent first lookups may each trigger a
// fetch, which is harmless.
type JWKSKeyProvider struct {
	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched bool

	jwksURL string
	client  *http.Client
}

func NewJWKSKeyProvider(jwksURL string) *JWKSKeyProvider {
	return &JWKSKeyProvider{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *JWKSKeyProvider) Key(kid string) (*rsa.PublicKey, error) {
	p.mu.RLock()
	fetched := p.fetched
	key, ok := p.keys[kid]
	p.mu.RUnlock()

	if fetched {
		if !ok {
			return nil, ErrKeyNotFound
		}
		return key, nil
	}

	if err := p.fetch(); err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok = p.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func (p *JWKSKeyProvider) Invalidate() {
	p.mu.Lock()
	p.keys = nil
	p.fetched = false
	p.mu.Unlock()
}

func (p *JWKSKeyProvider) fetch() error {
	resp, err := p.client.Get(p.jwksURL)
	if err != nil {
		return fmt.Errorf("GET %s: %w", p.jwksURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKSResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("decoding JWKS response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Use != "sig" {
			continue
		}
		pubKey, err := parseRSAPublicKey(k)
		if err != nil {
			continue // skip malformed keys
		}
		keys[k.Kid] = pubKey
	}

	p.mu.Lock()
	p.keys = keys
	p.fetched = true
	p.mu.Unlock()

	return nil
}

func parseRSAPublicKey(k JWKSKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
