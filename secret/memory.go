package secret

import (
	"sync"

	"github.com/onboardctl/blobstore/nonce"
)

// MemoryStore is a Store backed entirely by process memory. It is
// useful for unit tests and for embedding scenarios where the device's
// key material and nonce slot are supplied by some other mechanism
// (e.g. injected at process start) rather than persisted by this
// package.
type MemoryStore struct {
	mu         sync.Mutex
	sealingKey []byte
	macKey     []byte
	slot       nonce.Slot
}

// NewMemoryStore returns a MemoryStore seeded with the given sealing
// and MAC keys and an empty (uninitialized) nonce slot.
func NewMemoryStore(sealingKey, macKey []byte) *MemoryStore {
	return &MemoryStore{
		sealingKey: append([]byte(nil), sealingKey...),
		macKey:     append([]byte(nil), macKey...),
	}
}

func (s *MemoryStore) SealingKey() (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sealingKey) == 0 {
		return nil, ErrKeyUnavailable
	}
	return NewKey(s.sealingKey), nil
}

func (s *MemoryStore) MACKey() (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.macKey) == 0 {
		return nil, ErrKeyUnavailable
	}
	return NewKey(s.macKey), nil
}

func (s *MemoryStore) ReadNonceSlot() (nonce.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot, nil
}

func (s *MemoryStore) WriteNonceSlot(slot nonce.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = slot
	return nil
}

var _ Store = (*MemoryStore)(nil)
