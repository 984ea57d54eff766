// Package identity hands out the anonymous client id. It is a display hint
// ("is this my message"), not a credential.
package identity

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
)

// StorageKey is the key the id is kept under in client storage.
const StorageKey = "userId"

// Storage is durable key-value storage local to one client.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// NewID returns a base-36 rendering of a random 64-bit value.
func NewID() string {
	return strconv.FormatUint(rand.Uint64(), 36)
}

type Provider struct {
	newID func() string
}

func NewProvider() *Provider {
	return &Provider{newID: NewID}
}

// GetOrCreate returns the id held by storage, generating and storing one on
// first use. Storage is written at most once per client.
func (p *Provider) GetOrCreate(storage Storage) (string, error) {
	if id, ok := storage.Get(StorageKey); ok && id != "" {
		return id, nil
	}
	id := p.newID()
	if err := storage.Set(StorageKey, id); err != nil {
		return "", fmt.Errorf("persist client id failed: %w", err)
	}
	return id, nil
}

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.writes++
	return nil
}

// Writes reports how many times Set was called.
func (s *MemoryStorage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
