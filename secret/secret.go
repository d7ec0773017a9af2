// Package secret defines the Platform Secret Store contract: the
// device-bound sealing key, the MAC key, and the durable nonce slot.
// It is a fixed interface — a secure element, an OS keyring, or (as
// provided here) a file-backed store can all satisfy it identically;
// the rest of the blob store never knows which.
package secret

import (
	"errors"

	"github.com/onboardctl/blobstore/nonce"
)

// ErrKeyUnavailable is returned when the platform refuses to produce
// a requested key.
var ErrKeyUnavailable = errors.New("secret: key unavailable")

// Store is consumed by the Blob Store and the nonce Manager. Every key
// accessor returns a scoped Key that the caller must Zeroize on every
// exit path, success or failure.
type Store interface {
	// SealingKey returns the device's AES-GCM sealing key.
	SealingKey() (*Key, error)
	// MACKey returns the device's HMAC-SHA-256 key.
	MACKey() (*Key, error)

	nonce.Store
}

// Key is scoped key material borrowed from a Store. Callers must call
// Zeroize exactly once, on every exit path of the operation that
// acquired it.
type Key struct {
	b []byte
}

// NewKey copies b into a new scoped Key.
func NewKey(b []byte) *Key {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Key{b: cp}
}

// Bytes returns the key's bytes. The returned slice aliases the Key's
// internal storage and must not be retained past Zeroize.
func (k *Key) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.b
}

// Zeroize overwrites the key's bytes with zero and releases them. It
// is safe to call more than once and on a nil Key.
func (k *Key) Zeroize() {
	if k == nil {
		return
	}
	for i := range k.b {
		k.b[i] = 0
	}
	k.b = nil
}
