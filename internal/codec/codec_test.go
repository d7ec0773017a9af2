package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainRoundTrip(t *testing.T) {
	payload := []byte("plaintext payload")
	raw, err := Encode(Plain, Frame{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, payload, raw)

	f, err := Parse(Plain, raw)
	require.NoError(t, err)
	require.Equal(t, payload, f.Payload)
}

func TestAuthenticatedRoundTrip(t *testing.T) {
	payload := []byte("authenticated payload")
	var mac [MACSize]byte
	copy(mac[:], bytes.Repeat([]byte{0xab}, MACSize))

	raw, err := Encode(Authenticated, Frame{MAC: mac, Payload: payload})
	require.NoError(t, err)
	require.Len(t, raw, MACSize+LenSize+len(payload))

	f, err := Parse(Authenticated, raw)
	require.NoError(t, err)
	require.Equal(t, mac, f.MAC)
	require.Equal(t, payload, f.Payload)
}

func TestAuthenticatedParseRejectsLengthMismatch(t *testing.T) {
	var mac [MACSize]byte
	raw, err := Encode(Authenticated, Frame{MAC: mac, Payload: []byte("hello")})
	require.NoError(t, err)

	raw = append(raw, 0xff) // one extra byte past the declared length

	_, err = Parse(Authenticated, raw)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestAuthenticatedParseRejectsShortHeader(t *testing.T) {
	_, err := Parse(Authenticated, make([]byte, MACSize))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSealedRoundTrip(t *testing.T) {
	payload := []byte("ciphertext bytes here")
	var nonce [NonceSize]byte
	var tag [TagSize]byte
	copy(nonce[:], bytes.Repeat([]byte{0x11}, NonceSize))
	copy(tag[:], bytes.Repeat([]byte{0x22}, TagSize))

	raw, err := Encode(Sealed, Frame{Nonce: nonce, Tag: tag, Payload: payload})
	require.NoError(t, err)
	require.Len(t, raw, NonceSize+TagSize+LenSize+len(payload))

	f, err := Parse(Sealed, raw)
	require.NoError(t, err)
	require.Equal(t, nonce, f.Nonce)
	require.Equal(t, tag, f.Tag)
	require.Equal(t, payload, f.Payload)
}

func TestSealedParseRejectsShortHeader(t *testing.T) {
	_, err := Parse(Sealed, make([]byte, NonceSize+TagSize))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestUnknownModeRejected(t *testing.T) {
	_, err := Encode(Mode(99), Frame{})
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = Parse(Mode(99), nil)
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = HeaderLen(Mode(99))
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = SizeOf(Mode(99), 10)
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestSizeOf(t *testing.T) {
	n, err := SizeOf(Plain, 42)
	require.NoError(t, err)
	require.EqualValues(t, 42, n)

	n, err = SizeOf(Authenticated, MACSize+LenSize+10)
	require.NoError(t, err)
	require.EqualValues(t, 10, n)

	_, err = SizeOf(Authenticated, MACSize)
	require.ErrorIs(t, err, ErrMalformed)

	n, err = SizeOf(Sealed, NonceSize+TagSize+LenSize+7)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	_, err = SizeOf(Sealed, NonceSize)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestModeString(t *testing.T) {
	require.Equal(t, "Plain", Plain.String())
	require.Equal(t, "Authenticated", Authenticated.String())
	require.Equal(t, "Sealed", Sealed.String())
	require.Equal(t, "Mode(7)", Mode(7).String())
}
