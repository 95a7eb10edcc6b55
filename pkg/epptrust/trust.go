// Package epptrust implements the trust registry (C4): the mapping from a
// sender key ID to its public key and policy (allowed scopes, rate caps,
// max envelope size), per spec §4.4.
package epptrust

import (
	"errors"
	"sync"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
)

// ErrAlreadyPresent is returned by Add when the sender's public key is
// already in the registry (spec §4.4: add fails rather than upserting).
var ErrAlreadyPresent = errors.New("epptrust: sender already present")

// ErrNotFound is returned by Remove when the sender's public key is not
// in the registry (spec §4.4: remove fails rather than no-op).
var ErrNotFound = errors.New("epptrust: sender not found")

// RateLimit is the per-sender hourly/daily cap. A nil pointer field means
// "no cap" for that window.
type RateLimit struct {
	MaxPerHour *int `yaml:"max_per_hour,omitempty" json:"max_per_hour,omitempty"`
	MaxPerDay  *int `yaml:"max_per_day,omitempty" json:"max_per_day,omitempty"`
}

// Policy is the set of constraints a trust entry attaches to its sender.
type Policy struct {
	AllowedScopes []string `yaml:"allowed_scopes" json:"allowed_scopes"`

	// MaxEnvelopeSize is required by spec §3 (a non-optional, non-negative
	// field): nil means "not set" and admits any size, while a non-nil
	// pointer — including one pointing at 0 — enforces a literal
	// size_bytes <= max_envelope_size comparison. A bare int zero value
	// would be indistinguishable from an operator who never set a limit.
	MaxEnvelopeSize *int       `yaml:"max_envelope_size" json:"max_envelope_size"`
	RateLimit       *RateLimit `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// ScopeExpr is an optional CEL expression (pkg/epppolicy) evaluated in
	// addition to AllowedScopes. It can only narrow admission further, never
	// widen it: both must pass.
	ScopeExpr string `yaml:"scope_expr,omitempty" json:"scope_expr,omitempty"`
}

// AllowsScope reports whether s appears in the policy's allowed list, or
// the list contains the wildcard "*" (spec §8: scope gating).
func (p Policy) AllowsScope(s string) bool {
	for _, allowed := range p.AllowedScopes {
		if allowed == s || allowed == "*" {
			return true
		}
	}
	return false
}

// Entry binds a sender's hex-encoded key ID to its public key and policy.
type Entry struct {
	Name      string    `yaml:"name" json:"name"`
	PublicKey string    `yaml:"public_key" json:"public_key"` // 64-char lowercase hex
	AddedAt   string    `yaml:"added_at,omitempty" json:"added_at,omitempty"`
	Policy    Policy    `yaml:"policy" json:"policy"`
}

// Store persists trust entries. FileStore is the mandatory default
// (spec §4.4); PostgresStore is an optional durable backend.
type Store interface {
	Load() (map[string]Entry, error)
	Save(map[string]Entry) error
}

// Registry is the in-memory, concurrency-safe view of the trust store,
// loaded from Store once at construction and written back on every Add
// and Remove.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	store   Store
}

// NewRegistry constructs a Registry backed by store, loading its current
// contents immediately.
func NewRegistry(store Store) (*Registry, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Registry{entries: entries, store: store}, nil
}

// Get returns the trust entry for a sender's hex key ID.
func (r *Registry) Get(senderHex string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[senderHex]
	return e, ok
}

// PublicKey resolves a trusted sender's Ed25519 public key.
func (r *Registry) PublicKey(senderHex string) (eppkey.PublicKey, bool) {
	e, ok := r.Get(senderHex)
	if !ok {
		return eppkey.PublicKey{}, false
	}
	pk, err := eppkey.PublicKeyFromHex(e.PublicKey)
	if err != nil {
		return eppkey.PublicKey{}, false
	}
	return pk, true
}

// List returns a snapshot of all trust entries keyed by sender hex.
func (r *Registry) List() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Add inserts a new trust entry and persists the registry. It fails with
// ErrAlreadyPresent if senderHex is already registered (spec §4.4); callers
// that want to change an existing sender's policy must Remove then Add.
func (r *Registry) Add(senderHex string, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[senderHex]; exists {
		return ErrAlreadyPresent
	}
	r.entries[senderHex] = e
	return r.persistLocked()
}

// Remove deletes a trust entry and persists the registry. It fails with
// ErrNotFound if senderHex is not registered (spec §4.4). Revocation takes
// effect for every subsequent Submit call; in-flight admissions already
// past the trust gate are unaffected.
func (r *Registry) Remove(senderHex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[senderHex]; !exists {
		return ErrNotFound
	}
	delete(r.entries, senderHex)
	return r.persistLocked()
}

func (r *Registry) persistLocked() error {
	snapshot := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	return r.store.Save(snapshot)
}
