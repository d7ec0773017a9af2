// Package primitives binds the cryptographic contract surface used by
// the rest of the blob store: a keyed MAC, an authenticated cipher, a
// strong random source, and constant-time comparison. It performs no
// I/O and holds no state of its own.
package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
)

// Fixed sizes mandated by the envelope formats.
const (
	MACSize   = sha256.Size // 32
	NonceSize = 12
	TagSize   = 16
)

// HMACSHA256 computes the keyed MAC over msg. It is deterministic and
// holds no hidden state between calls.
func HMACSHA256(key, msg []byte) [MACSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	var out [MACSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ConstantTimeEqual reports whether a and b hold the same bytes without
// leaking timing information about the position of the first
// difference. Buffers of differing length are never equal.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// AESGCMEncrypt seals plaintext under key using the given 12-byte
// nonce. The returned tag is always TagSize bytes and the ciphertext
// is always len(plaintext) bytes.
func AESGCMEncrypt(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != NonceSize {
		return nil, nil, fmt.Errorf("primitives: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - TagSize
	ciphertext = sealed[:ctLen:ctLen]
	tag = sealed[ctLen:]
	return ciphertext, tag, nil
}

// ErrAuthFail is returned by AESGCMDecrypt when the tag does not
// authenticate. No plaintext bytes are ever returned in this case.
var ErrAuthFail = fmt.Errorf("primitives: authentication failed")

// AESGCMDecrypt opens ciphertext under key, nonce and tag. On any
// authentication failure it returns ErrAuthFail and a nil slice; it
// never returns partially-decrypted bytes.
func AESGCMDecrypt(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("primitives: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	if len(tag) != TagSize {
		return nil, ErrAuthFail
	}
	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)
	plaintext, err := gcm.Open(nil, nonce, combined, nil)
	if err != nil {
		return nil, ErrAuthFail
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("primitives: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("primitives: new gcm: %w", err)
	}
	return gcm, nil
}

// RandomBytes returns n cryptographically strong random bytes. It is
// used only by the nonce manager to draw a fresh base nonce on first
// sealed use of a device.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("primitives: random bytes: %w", err)
	}
	return b, nil
}
