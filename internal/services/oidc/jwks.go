package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// DefaultJWKSRefresh is the minimum interval between background refreshes of a key set.
const DefaultJWKSRefresh = 15 * time.Minute

// KeySource returns the signing keys published at a JWKS URL.
type KeySource interface {
	Keys(ctx context.Context, jwksURL string) (jwk.Set, error)
}

// JWKSManager fetches key sets on first use and keeps them refreshed in the background.
type JWKSManager struct {
	cache   *jwk.Cache
	refresh time.Duration

	mu         sync.Mutex
	registered map[string]bool
}

// NewJWKSManager creates a manager whose refresh goroutines stop when ctx is cancelled.
func NewJWKSManager(ctx context.Context) *JWKSManager {
	return &JWKSManager{
		cache:      jwk.NewCache(ctx),
		refresh:    DefaultJWKSRefresh,
		registered: make(map[string]bool),
	}
}

// Keys returns the key set for jwksURL, registering the URL on first use.
func (m *JWKSManager) Keys(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.Lock()
	if !m.registered[jwksURL] {
		if err := m.cache.Register(jwksURL, jwk.WithMinRefreshInterval(m.refresh)); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("failed to register JWKS url: %w", err)
		}
		m.registered[jwksURL] = true
	}
	m.mu.Unlock()

	keys, err := m.cache.Get(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	return keys, nil
}
