// Package storagetest provides a reusable conformance harness for
// blobstore.Store, the way caddytls/storagetest exercises any
// caddytls.Storage implementation through one shared test body. It is
// driven against both the file-backed and in-memory secret stores so
// the same property suite covers every Platform Secret Store this
// repository ships.
package storagetest

import (
	"bytes"
	"testing"

	"github.com/onboardctl/blobstore"
)

// Harness exercises a *blobstore.Store across all three modes.
type Harness struct {
	Store *blobstore.Store
}

// Run executes the full conformance suite against h.Store.
func (h *Harness) Run(t *testing.T) {
	for _, mode := range []blobstore.Mode{blobstore.Plain, blobstore.Authenticated, blobstore.Sealed} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			h.testRoundTrip(t, mode)
			h.testSizeOfAbsentAndPresent(t, mode)
			h.testDelete(t, mode)
		})
	}
	t.Run("List", h.testList)
}

func (h *Harness) testRoundTrip(t *testing.T, mode blobstore.Mode) {
	t.Helper()
	name := "roundtrip-" + mode.String()
	payload := []byte("the quick brown fox jumps over the lazy dog")

	n, err := h.Store.Write(name, mode, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write returned %d, want %d", n, len(payload))
	}

	buf := make([]byte, len(payload)+16)
	n, err = h.Store.Read(name, mode, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("Read returned %q, want %q", buf[:n], payload)
	}

	// A buffer shorter than the payload must be rejected, not
	// truncated.
	short := make([]byte, 1)
	if _, err := h.Store.Read(name, mode, short); !blobstore.IsKind(err, blobstore.BufferTooSmall) {
		t.Fatalf("Read with short buffer: got %v, want BufferTooSmall", err)
	}
}

func (h *Harness) testSizeOfAbsentAndPresent(t *testing.T, mode blobstore.Mode) {
	t.Helper()
	name := "size-" + mode.String()

	n, err := h.Store.Size(name, mode)
	if err != nil {
		t.Fatalf("Size of absent blob: %v", err)
	}
	if n != 0 {
		t.Fatalf("Size of absent blob = %d, want 0", n)
	}

	payload := []byte("0123456789")
	if _, err := h.Store.Write(name, mode, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err = h.Store.Size(name, mode)
	if err != nil {
		t.Fatalf("Size of present blob: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Size of present blob = %d, want %d", n, len(payload))
	}
}

func (h *Harness) testDelete(t *testing.T, mode blobstore.Mode) {
	t.Helper()
	name := "delete-" + mode.String()

	if err := h.Store.Delete(name, mode); !blobstore.IsKind(err, blobstore.NotFound) {
		t.Fatalf("Delete of absent blob: got %v, want NotFound", err)
	}

	if _, err := h.Store.Write(name, mode, []byte("gone soon")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.Store.Delete(name, mode); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	n, err := h.Store.Size(name, mode)
	if err != nil {
		t.Fatalf("Size after delete: %v", err)
	}
	if n != 0 {
		t.Fatalf("Size after delete = %d, want 0", n)
	}
}

func (h *Harness) testList(t *testing.T) {
	t.Helper()
	if _, err := h.Store.Write("list-target", blobstore.Plain, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	names, err := h.Store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "list-target" {
			found = true
		}
	}
	if !found {
		t.Fatalf("List = %v, missing %q", names, "list-target")
	}
}

