package primitives

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHMACSHA256Deterministic(t *testing.T) {
	key := []byte("a-test-mac-key")
	msg := []byte("the message")

	a := HMACSHA256(key, msg)
	b := HMACSHA256(key, msg)
	require.Equal(t, a, b)

	c := HMACSHA256(key, []byte("a different message"))
	require.NotEqual(t, a, c)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("abcd")))
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	nonce := bytes.Repeat([]byte{0x01}, NonceSize)
	plaintext := []byte("seal this payload")

	ciphertext, tag, err := AESGCMEncrypt(key, nonce, plaintext)
	require.NoError(t, err)
	require.Len(t, tag, TagSize)
	require.Len(t, ciphertext, len(plaintext))

	got, err := AESGCMDecrypt(key, nonce, ciphertext, tag)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestAESGCMDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, 32)
	nonce := bytes.Repeat([]byte{0x02}, NonceSize)
	plaintext := []byte("do not leak me")

	ciphertext, tag, err := AESGCMEncrypt(key, nonce, plaintext)
	require.NoError(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xff

	got, err := AESGCMDecrypt(key, nonce, tampered, tag)
	require.ErrorIs(t, err, ErrAuthFail)
	require.Nil(t, got)
}

func TestAESGCMDecryptRejectsTamperedTag(t *testing.T) {
	key := bytes.Repeat([]byte{0x0a}, 32)
	nonce := bytes.Repeat([]byte{0x03}, NonceSize)
	plaintext := []byte("another secret")

	ciphertext, tag, err := AESGCMEncrypt(key, nonce, plaintext)
	require.NoError(t, err)

	tampered := append([]byte(nil), tag...)
	tampered[0] ^= 0xff

	got, err := AESGCMDecrypt(key, nonce, ciphertext, tampered)
	require.ErrorIs(t, err, ErrAuthFail)
	require.Nil(t, got)
}

func TestRandomBytesLengthAndVariation(t *testing.T) {
	a, err := RandomBytes(16)
	require.NoError(t, err)
	require.Len(t, a, 16)

	b, err := RandomBytes(16)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
