// Package blobstore implements a secure blob storage layer for
// device-onboarding credentials and protocol state. A blob is
// persisted under one of three modes — Plain,
// Authenticated or Sealed — selected per call by the caller. The
// store orchestrates the Platform Secret Store, the crypto
// primitives, the envelope codec and the nonce manager to give each
// mode its documented guarantee, and nothing more.
package blobstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/onboardctl/blobstore/internal/codec"
	"github.com/onboardctl/blobstore/internal/primitives"
	"github.com/onboardctl/blobstore/nonce"
	"github.com/onboardctl/blobstore/secret"
)

// Mode selects which on-disk envelope protects a blob.
type Mode = codec.Mode

// The three supported modes, re-exported from the codec package so
// callers never need to import it directly.
const (
	Plain         = codec.Plain
	Authenticated = codec.Authenticated
	Sealed        = codec.Sealed
)

// DefaultMaxBlobBytes is the payload ceiling used when Config.MaxBlobBytes
// is left at zero.
const DefaultMaxBlobBytes = 1 << 20 // 1 MiB

// Config configures a Store. There are no environment variables and
// no config files read by this package: the embedding application
// constructs a Config directly.
type Config struct {
	// Dir is the root directory blobs are stored under. A "blobs"
	// subdirectory is created inside it.
	Dir string
	// MaxBlobBytes caps accepted payload size. Zero means
	// DefaultMaxBlobBytes.
	MaxBlobBytes int64
	// Secrets provides the sealing key, the MAC key and the nonce
	// slot. Required.
	Secrets secret.Store
	// Logger receives structured lifecycle and failure events. A nil
	// Logger is treated as zap.NewNop().
	Logger *zap.Logger
}

// Store is the public façade: Size, Read, Write, Delete and List. A
// Store is safe for concurrent use by multiple goroutines reading and
// writing distinct blob names; two concurrent writers to the *same*
// name produce an unspecified but still framed result — callers
// serialize that case themselves.
type Store struct {
	dir          string
	maxBlobBytes int64
	secrets      secret.Store
	nonces       *nonce.Manager
	log          *zap.Logger
}

// New constructs a Store from cfg, creating its blob directory if
// necessary.
func New(cfg Config) (*Store, error) {
	if cfg.Secrets == nil {
		return nil, newErr("New", InvalidArgument, fmt.Errorf("blobstore: Config.Secrets is required"))
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o700); err != nil {
		return nil, newErr("New", IO, err)
	}

	maxBytes := cfg.MaxBlobBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBlobBytes
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		dir:          dir,
		maxBlobBytes: maxBytes,
		secrets:      cfg.Secrets,
		nonces:       nonce.NewManager(cfg.Secrets, log),
		log:          log,
	}, nil
}

// Size returns the payload length stored under name in mode. A
// nonexistent blob reports 0, not an error; a corrupt frame or a
// payload over the configured maximum reports Error{Kind: Malformed}.
func (s *Store) Size(name string, mode Mode) (int64, error) {
	path, err := s.blobPath(name)
	if err != nil {
		return 0, err
	}

	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, newErr("Size", IO, err)
	}

	n, err := codec.SizeOf(mode, fi.Size())
	if err == codec.ErrUnknownMode {
		return 0, newErr("Size", InvalidArgument, err)
	}
	if err != nil {
		return 0, newErr("Size", Malformed, err)
	}
	if mode != codec.Plain {
		// The frame's own length prefix must agree with the file size.
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, newErr("Size", IO, err)
		}
		if _, err := codec.Parse(mode, raw); err != nil {
			return 0, newErr("Size", Malformed, err)
		}
	}
	if n > s.maxBlobBytes {
		return 0, newErr("Size", Malformed, fmt.Errorf("blobstore: stored payload %d exceeds max %d", n, s.maxBlobBytes))
	}
	return n, nil
}

// Read loads name under mode into out, returning the number of
// payload bytes written. On any authentication failure out's payload
// region is zeroized before the error is returned; no caller ever
// observes unauthenticated plaintext.
func (s *Store) Read(name string, mode Mode, out []byte) (int, error) {
	path, err := s.blobPath(name)
	if err != nil {
		return 0, err
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, newErr("Read", NotFound, err)
	}
	if err != nil {
		return 0, newErr("Read", IO, err)
	}

	frame, err := codec.Parse(mode, raw)
	if err == codec.ErrUnknownMode {
		return 0, newErr("Read", InvalidArgument, err)
	}
	if err != nil {
		return 0, newErr("Read", Malformed, err)
	}
	if int64(len(frame.Payload)) > s.maxBlobBytes {
		return 0, newErr("Read", Malformed, fmt.Errorf("blobstore: stored payload exceeds max %d", s.maxBlobBytes))
	}
	if len(out) < len(frame.Payload) {
		return 0, newErr("Read", BufferTooSmall, fmt.Errorf("blobstore: buffer of %d bytes too small for %d-byte payload", len(out), len(frame.Payload)))
	}

	switch mode {
	case codec.Plain:
		return copy(out, frame.Payload), nil

	case codec.Authenticated:
		key, err := s.secrets.MACKey()
		if err != nil {
			return 0, newErr("Read", KeyUnavailable, err)
		}
		defer key.Zeroize()

		mac := primitives.HMACSHA256(key.Bytes(), frame.Payload)
		if !primitives.ConstantTimeEqual(mac[:], frame.MAC[:]) {
			s.log.Error("authenticated blob failed MAC verification", zap.String("name", name))
			zeroize(out)
			return 0, newErr("Read", IntegrityMacMismatch, fmt.Errorf("blobstore: MAC mismatch for %q", name))
		}
		return copy(out, frame.Payload), nil

	case codec.Sealed:
		key, err := s.secrets.SealingKey()
		if err != nil {
			return 0, newErr("Read", KeyUnavailable, err)
		}
		defer key.Zeroize()

		plaintext, err := primitives.AESGCMDecrypt(key.Bytes(), frame.Nonce[:], frame.Payload, frame.Tag[:])
		if err != nil {
			s.log.Error("sealed blob failed authentication", zap.String("name", name))
			zeroize(out)
			return 0, newErr("Read", IntegritySealMismatch, fmt.Errorf("blobstore: seal mismatch for %q", name))
		}
		defer zeroize(plaintext)
		return copy(out, plaintext), nil

	default:
		return 0, newErr("Read", InvalidArgument, fmt.Errorf("blobstore: unknown mode %v", mode))
	}
}

// Write persists in under name in mode, replacing any prior blob of
// that name, and returns len(in) on success. Sealed writes consume a
// nonce from the device's nonce slot; once that slot is exhausted,
// every subsequent Sealed write fails with Error{Kind: NonceRollover}
// even though the blob directory itself is untouched.
func (s *Store) Write(name string, mode Mode, in []byte) (int, error) {
	if len(in) == 0 {
		return 0, newErr("Write", InvalidArgument, fmt.Errorf("blobstore: payload must not be empty"))
	}
	if int64(len(in)) > s.maxBlobBytes {
		return 0, newErr("Write", InvalidArgument, fmt.Errorf("blobstore: payload of %d bytes exceeds max %d", len(in), s.maxBlobBytes))
	}

	path, err := s.blobPath(name)
	if err != nil {
		return 0, err
	}

	var frame codec.Frame

	switch mode {
	case codec.Plain:
		frame.Payload = in

	case codec.Authenticated:
		key, err := s.secrets.MACKey()
		if err != nil {
			return 0, newErr("Write", KeyUnavailable, err)
		}
		defer key.Zeroize()
		frame.MAC = primitives.HMACSHA256(key.Bytes(), in)
		frame.Payload = in

	case codec.Sealed:
		// Persist the advanced nonce before the frame file is
		// written: if the process dies between here and the write
		// below, the nonce is considered consumed and is never
		// reused.
		n, err := s.nonces.Advance(len(in))
		if err != nil {
			if err == nonce.ErrRollover {
				return 0, newErr("Write", NonceRollover, err)
			}
			return 0, newErr("Write", IO, err)
		}

		key, err := s.secrets.SealingKey()
		if err != nil {
			return 0, newErr("Write", KeyUnavailable, err)
		}
		defer key.Zeroize()

		ciphertext, tag, err := primitives.AESGCMEncrypt(key.Bytes(), n[:], in)
		if err != nil {
			return 0, newErr("Write", IO, err)
		}
		frame.Nonce = n
		copy(frame.Tag[:], tag)
		frame.Payload = ciphertext

	default:
		return 0, newErr("Write", InvalidArgument, fmt.Errorf("blobstore: unknown mode %v", mode))
	}

	raw, err := codec.Encode(mode, frame)
	if err != nil {
		return 0, newErr("Write", InvalidArgument, err)
	}

	if err := s.atomicWrite(path, raw); err != nil {
		return 0, newErr("Write", IO, err)
	}

	s.log.Info("blob written", zap.String("name", name), zap.Stringer("mode", mode), zap.Int("bytes", len(in)))
	return len(in), nil
}

// Delete removes name's on-disk frame. It reports NotFound if no blob
// by that name exists.
func (s *Store) Delete(name string, mode Mode) error {
	path, err := s.blobPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return newErr("Delete", NotFound, err)
		}
		return newErr("Delete", IO, err)
	}
	return nil
}

// List enumerates the names of blobs currently stored, in no
// particular order. It does not interpret or validate their contents.
func (s *Store) List() ([]string, error) {
	root := filepath.Join(s.dir, "blobs")
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".blob") {
			return nil
		}
		names = append(names, strings.TrimSuffix(filepath.Base(path), ".blob"))
		return nil
	})
	if err != nil {
		return nil, newErr("List", IO, err)
	}
	return names, nil
}

// blobPath derives the on-disk path for name, stripping any path
// traversal segments so a crafted name can never escape the store's
// blob directory. Names are sharded into two-hex-digit subdirectories
// by a fast, non-cryptographic hash purely to keep any one directory
// from holding an unbounded number of entries.
func (s *Store) blobPath(name string) (string, error) {
	clean := strings.ReplaceAll(name, "\\", "/")
	var safe strings.Builder
	for _, part := range strings.Split(clean, "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		safe.WriteString(part)
	}
	joined := safe.String()
	if joined == "" {
		return "", newErr("blobPath", InvalidArgument, fmt.Errorf("blobstore: blob name %q has no usable path segment", name))
	}

	shard := fmt.Sprintf("%02x", byte(xxhash.Sum64String(joined)))
	return filepath.Join(s.dir, "blobs", shard, joined+".blob"), nil
}

// atomicWrite writes data to path by creating a temp file alongside it
// and renaming it into place, so a reader never observes a
// partially-written frame.
func (s *Store) atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
