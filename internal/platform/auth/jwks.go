package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksTTL is how long a fetched key set stays authoritative.
const jwksTTL = 5 * time.Minute

// webKey is one entry in a JSON Web Key Set. Only RSA signing keys are
// understood; other key types are skipped.
type webKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keyCache mirrors the RSA keys published at a JWKS endpoint. Lookups serve
// from memory until the TTL lapses, and an unknown kid forces a refetch so
// rotated keys are picked up without waiting out the TTL.
type keyCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeyCache(url string, ttl time.Duration) *keyCache {
	return &keyCache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		keys:   map[string]*rsa.PublicKey{},
	}
}

// key returns the public key with the given kid. Lookups block while a
// refresh is in flight; one fetch serves every waiter.
func (kc *keyCache) key(kid string) (*rsa.PublicKey, error) {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if k, ok := kc.keys[kid]; ok && time.Since(kc.fetchedAt) < kc.ttl {
		return k, nil
	}
	if err := kc.refresh(); err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	k, ok := kc.keys[kid]
	if !ok {
		return nil, fmt.Errorf("JWKS at %s has no key %q", kc.url, kid)
	}
	return k, nil
}

// refresh replaces the cached set with the endpoint's current contents.
// The caller holds the mutex.
func (kc *keyCache) refresh() error {
	resp, err := kc.client.Get(kc.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []webKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding key set: %w", err)
	}

	fresh := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			continue
		}
		fresh[k.Kid] = pub
	}

	kc.keys = fresh
	kc.fetchedAt = time.Now()
	return nil
}

// rsaPublicKey assembles an rsa.PublicKey from the base64url modulus and
// exponent of a JWK.
func rsaPublicKey(k webKey) (*rsa.PublicKey, error) {
	mod, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus of key %q: %w", k.Kid, err)
	}
	exp, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent of key %q: %w", k.Kid, err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(mod),
		E: int(new(big.Int).SetBytes(exp).Int64()),
	}, nil
}

// keyfuncFromJWKS adapts a keyCache to the token parser. The kid header
// picks the key; tokens without one are rejected outright.
func keyfuncFromJWKS(url string) jwt.Keyfunc {
	cache := newKeyCache(url, jwksTTL)
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return cache.key(kid)
	}
}
