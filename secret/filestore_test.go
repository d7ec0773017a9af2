package secret

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onboardctl/blobstore/nonce"
)

func openTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.db")
	fs, err := OpenFileStore(path, []byte("test-seed-do-not-use-in-production"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFileStoreDerivesStableKeys(t *testing.T) {
	fs := openTestFileStore(t)

	k1, err := fs.SealingKey()
	require.NoError(t, err)
	k1Bytes := append([]byte(nil), k1.Bytes()...)

	k2, err := fs.SealingKey()
	require.NoError(t, err)
	require.Equal(t, k1Bytes, k2.Bytes())

	mac, err := fs.MACKey()
	require.NoError(t, err)
	require.NotEqual(t, k1Bytes, mac.Bytes())

	k1.Zeroize()
	require.Empty(t, k1.Bytes())
}

func TestFileStoreKeysSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	seed := []byte("reopen-seed")

	fs1, err := OpenFileStore(path, seed, nil)
	require.NoError(t, err)
	k1, err := fs1.SealingKey()
	require.NoError(t, err)
	want := append([]byte(nil), k1.Bytes()...)
	require.NoError(t, fs1.Close())

	fs2, err := OpenFileStore(path, seed, nil)
	require.NoError(t, err)
	defer fs2.Close()
	k2, err := fs2.SealingKey()
	require.NoError(t, err)
	require.Equal(t, want, k2.Bytes())
}

func TestFileStoreNonceSlotRoundTrip(t *testing.T) {
	fs := openTestFileStore(t)

	slot, err := fs.ReadNonceSlot()
	require.NoError(t, err)
	require.False(t, slot.Initialized)
	require.False(t, slot.Exhausted)

	slot.Initialized = true
	slot.Base = [nonce.Size]byte{1, 2, 3}
	slot.Counter = [nonce.Size]byte{1, 2, 4}
	require.NoError(t, fs.WriteNonceSlot(slot))

	got, err := fs.ReadNonceSlot()
	require.NoError(t, err)
	require.Equal(t, slot, got)

	slot.Exhausted = true
	require.NoError(t, fs.WriteNonceSlot(slot))
	got, err = fs.ReadNonceSlot()
	require.NoError(t, err)
	require.True(t, got.Exhausted)
}

func TestFileStoreInstanceIDStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	seed := []byte("instance-seed")

	fs1, err := OpenFileStore(path, seed, nil)
	require.NoError(t, err)
	id1, err := fs1.InstanceID()
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	require.NoError(t, fs1.Close())

	fs2, err := OpenFileStore(path, seed, nil)
	require.NoError(t, err)
	defer fs2.Close()
	id2, err := fs2.InstanceID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}
