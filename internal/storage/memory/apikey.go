package memory

import (
	"context"
	"sync"

	"github.com/dulceria/mayorista/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyStore)(nil)

// APIKeyStore holds API keys in memory, indexed by their HMAC hash.
type APIKeyStore struct {
	mu   sync.Mutex
	keys map[string]auth.APIKeyInfo
}

// NewAPIKeyStore creates an APIKeyStore seeded with the given keys.
func NewAPIKeyStore(keys ...auth.APIKeyInfo) *APIKeyStore {
	m := make(map[string]auth.APIKeyInfo, len(keys))
	for _, k := range keys {
		m[k.KeyHash] = k
	}
	return &APIKeyStore{keys: m}
}

// FindByHash looks up an active key by its hash.
func (s *APIKeyStore) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	cp := k
	return &cp, nil
}
