// Package session implements the anonymous identity used to meter free usage.
//
// A session token has the form session_<unix-ms>_<random suffix> and is
// generated client-side on first use, then persisted so the same client
// installation keeps the same identity.
package session

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"sync"
	"time"
)

const (
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength   = 13

	// DefaultStoreKey is the store key under which the token is persisted.
	DefaultStoreKey = "postforge-session-id"
)

var tokenPattern = regexp.MustCompile(`^session_\d{10,15}_[a-z0-9]{8,20}$`)

// Generate returns a fresh session token. It always succeeds.
func Generate() string {
	buf := make([]byte, suffixLength)
	if _, err := rand.Read(buf); err != nil {
		// The randomness source is assumed always available; derive a
		// suffix from the clock rather than failing token generation.
		now := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(now >> (uint(i%8) * 8))
		}
	}

	suffix := make([]byte, suffixLength)
	for i, b := range buf {
		suffix[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}

	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}

// Valid reports whether token matches the required session token format.
func Valid(token string) bool {
	return tokenPattern.MatchString(token)
}

// Provider returns a stable session token for this installation,
// generating and persisting one on first use. Safe for concurrent use.
type Provider struct {
	mu    sync.Mutex
	store Store
	key   string
}

// NewProvider creates a provider backed by the given store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store, key: DefaultStoreKey}
}

// Token returns the persisted session token, generating one if absent.
// A stored value that no longer matches the token format is replaced.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tok, ok := p.store.Get(p.key); ok && Valid(tok) {
		return tok
	}

	tok := Generate()
	// Persistence is best-effort: a store failure costs identity
	// stability, not token generation.
	_ = p.store.Set(p.key, tok)
	return tok
}
