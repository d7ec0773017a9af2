package secret

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/onboardctl/blobstore/internal/primitives"
	"github.com/onboardctl/blobstore/nonce"
)

// FileStore is the reference Platform Secret Store: a single bbolt
// file holding the device's derived sealing and MAC keys and its
// nonce slot. bbolt's single-writer transactions give the slot exactly
// the exclusive, durable read-modify-write the nonce Manager needs;
// nothing here depends on bbolt for correctness beyond that, since the
// Manager already serializes access with its own lock.
//
// This is a reference/test implementation, not a production secure
// element: the seed passed to OpenFileStore is the store's only root
// of trust, and it is the caller's job to keep it device-bound.
type FileStore struct {
	db  *bolt.DB
	log *zap.Logger
}

var (
	bucketKeys  = []byte("keys")
	bucketMeta  = []byte("meta")
	bucketNonce = []byte("nonce")

	keySealing = []byte("sealing")
	keyMAC     = []byte("mac")

	metaInstanceID = []byte("instance_id")

	nonceBase        = []byte("base")
	nonceCounter     = []byte("counter")
	nonceInitialized = []byte("initialized")
	nonceExhausted   = []byte("exhausted")
)

const sealingKeySize = 32 // AES-256
const macKeySize = primitives.MACSize

// OpenFileStore opens (creating if necessary) a bbolt-backed secret
// store at path. seed is the device's root secret; on first open, the
// sealing and MAC keys are derived from it with HKDF-SHA256 under
// distinct info strings and persisted, so subsequent opens are stable
// even if seed were to vary (it shouldn't, in practice it's itself
// device-bound). A nil logger is treated as zap.NewNop().
func OpenFileStore(path string, seed []byte, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("secret: open file store: %w", err)
	}

	fs := &FileStore{db: db, log: log}

	err = db.Update(func(tx *bolt.Tx) error {
		kb, err := tx.CreateBucketIfNotExists(bucketKeys)
		if err != nil {
			return err
		}
		if kb.Get(keySealing) == nil {
			sealing, mac, err := deriveKeys(seed)
			if err != nil {
				return err
			}
			if err := kb.Put(keySealing, sealing); err != nil {
				return err
			}
			if err := kb.Put(keyMAC, mac); err != nil {
				return err
			}
		}

		mb, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if mb.Get(metaInstanceID) == nil {
			if err := mb.Put(metaInstanceID, []byte(uuid.New().String())); err != nil {
				return err
			}
		}

		_, err = tx.CreateBucketIfNotExists(bucketNonce)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("secret: provision file store: %w", err)
	}

	fs.log.Info("secret file store opened", zap.String("path", path))
	return fs, nil
}

func deriveKeys(seed []byte) (sealing, mac []byte, err error) {
	sealing = make([]byte, sealingKeySize)
	if _, err = io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte("blobstore/sealing-key/v1")), sealing); err != nil {
		return nil, nil, fmt.Errorf("secret: derive sealing key: %w", err)
	}
	mac = make([]byte, macKeySize)
	if _, err = io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte("blobstore/mac-key/v1")), mac); err != nil {
		return nil, nil, fmt.Errorf("secret: derive mac key: %w", err)
	}
	return sealing, mac, nil
}

// Close releases the underlying database file.
func (fs *FileStore) Close() error {
	return fs.db.Close()
}

// InstanceID returns the UUID stamped into this store the first time
// it was provisioned.
func (fs *FileStore) InstanceID() (string, error) {
	var id string
	err := fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return ErrKeyUnavailable
		}
		v := b.Get(metaInstanceID)
		if v == nil {
			return ErrKeyUnavailable
		}
		id = string(v)
		return nil
	})
	return id, err
}

func (fs *FileStore) SealingKey() (*Key, error) {
	return fs.readKey(keySealing)
}

func (fs *FileStore) MACKey() (*Key, error) {
	return fs.readKey(keyMAC)
}

func (fs *FileStore) readKey(name []byte) (*Key, error) {
	var k *Key
	err := fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		if b == nil {
			return ErrKeyUnavailable
		}
		v := b.Get(name)
		if v == nil {
			return ErrKeyUnavailable
		}
		k = NewKey(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (fs *FileStore) ReadNonceSlot() (nonce.Slot, error) {
	var slot nonce.Slot
	err := fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNonce)
		if b == nil {
			return nil
		}
		base := b.Get(nonceBase)
		counter := b.Get(nonceCounter)
		if base != nil {
			copy(slot.Base[:], base)
		}
		if counter != nil {
			copy(slot.Counter[:], counter)
		}
		slot.Initialized = b.Get(nonceInitialized) != nil
		slot.Exhausted = b.Get(nonceExhausted) != nil
		return nil
	})
	if err != nil {
		return nonce.Slot{}, fmt.Errorf("secret: read nonce slot: %w", err)
	}
	return slot, nil
}

func (fs *FileStore) WriteNonceSlot(slot nonce.Slot) error {
	err := fs.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketNonce)
		if err != nil {
			return err
		}
		if err := b.Put(nonceBase, slot.Base[:]); err != nil {
			return err
		}
		if err := b.Put(nonceCounter, slot.Counter[:]); err != nil {
			return err
		}
		if err := putFlag(b, nonceInitialized, slot.Initialized); err != nil {
			return err
		}
		return putFlag(b, nonceExhausted, slot.Exhausted)
	})
	if err != nil {
		return fmt.Errorf("secret: write nonce slot: %w", err)
	}
	if slot.Exhausted {
		fs.log.Warn("nonce slot persisted as exhausted; sealed writes disabled for this device")
	}
	return nil
}

func putFlag(b *bolt.Bucket, key []byte, set bool) error {
	if !set {
		return b.Delete(key)
	}
	return b.Put(key, []byte{1})
}

var _ Store = (*FileStore)(nil)
