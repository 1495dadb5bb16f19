package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
)

// MemorySecretStore keeps keypairs in process memory.
// Intended for dev/test: keys are lost on restart, so packages signed by a
// previous process can still be verified from the stored public key but no
// longer signed with.
type MemorySecretStore struct {
	mu   sync.Mutex
	keys map[string]ed25519.PrivateKey
}

// NewMemorySecretStore creates an empty MemorySecretStore.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{keys: make(map[string]ed25519.PrivateKey)}
}

// GenerateKeypair replaces the org's current key with a fresh one.
func (s *MemorySecretStore) GenerateKeypair(_ context.Context, orgID string) (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing/memory: generate key: %w", err)
	}

	s.mu.Lock()
	s.keys[orgID] = priv
	s.mu.Unlock()

	return pub, nil
}

// PublicKey returns the org's current public key.
func (s *MemorySecretStore) PublicKey(_ context.Context, orgID string) (ed25519.PublicKey, error) {
	priv, err := s.current(orgID)
	if err != nil {
		return nil, err
	}

	pub, _ := priv.Public().(ed25519.PublicKey)

	return pub, nil
}

// Sign signs payload with the org's current key.
func (s *MemorySecretStore) Sign(_ context.Context, orgID string, payload []byte) ([]byte, error) {
	priv, err := s.current(orgID)
	if err != nil {
		return nil, err
	}

	return ed25519.Sign(priv, payload), nil
}

func (s *MemorySecretStore) current(orgID string) (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, ok := s.keys[orgID]
	if !ok {
		return nil, fmt.Errorf("signing/memory: no key for org %q", orgID)
	}

	return priv, nil
}
