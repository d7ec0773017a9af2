// Package nonce owns the sealed-mode nonce slot: drawing a fresh base
// nonce on first use, monotonically advancing the counter by one per
// write (two for a write of 2^32 or more cipher blocks), detecting
// rollover, and
// latching the slot shut permanently once it does. None of this state
// lives in memory across process restarts — it is read from and
// written back to a Store on every advance.
package nonce

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/onboardctl/blobstore/internal/primitives"
)

// Size is the width, in bytes, of the base and counter fields and of
// every nonce this package emits.
const Size = primitives.NonceSize

// Slot is the persistent record backing the nonce state machine: a
// base value fixed at first use and a counter that only ever moves
// forward from it, plus latches recording whether the slot has been
// used at all and whether it has been exhausted.
type Slot struct {
	Base        [Size]byte
	Counter     [Size]byte
	Initialized bool
	Exhausted   bool
}

// Store is the durable, exclusive home for a device's nonce slot. A
// Platform Secret Store implementation satisfies this by construction.
type Store interface {
	ReadNonceSlot() (Slot, error)
	WriteNonceSlot(Slot) error
}

// ErrRollover is returned once a device's nonce slot has been
// exhausted. It is permanent: every subsequent sealed write on this
// device fails the same way.
var ErrRollover = errors.New("nonce: slot exhausted, sealed writes permanently disabled")

// blocksPerStepCeiling is 2^32; per-write blocks at or above this
// threshold use a step of 2 rather than 1, to keep adjacent
// encryptions from ever sharing a GCM internal counter window.
const blocksPerStepCeiling = uint64(1) << 32

// Manager serializes nonce advances for a single device. All state is
// owned by the Store; Manager holds only an in-process lock spanning
// the read-compute-persist sequence each advance needs.
type Manager struct {
	mu    sync.Mutex
	store Store
	log   *zap.Logger

	// rand is overridable in tests to make the first-use base nonce
	// deterministic; production callers never need to set this.
	rand io.Reader
}

// NewManager returns a Manager that persists its slot through store.
// A nil logger is treated as zap.NewNop().
func NewManager(store Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log}
}

// Advance returns the nonce to use for a sealed encryption of a
// payload of payloadLen bytes, persisting the advanced counter to the
// Store before returning it. On the very first call for a device it
// also draws and persists a fresh random base. Once the slot is
// exhausted, every call returns ErrRollover and leaves the slot
// exhausted on disk.
func (m *Manager) Advance(payloadLen int) ([Size]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [Size]byte

	slot, err := m.store.ReadNonceSlot()
	if err != nil {
		return out, fmt.Errorf("nonce: read slot: %w", err)
	}

	if slot.Exhausted {
		return out, ErrRollover
	}

	if !slot.Initialized {
		base, err := m.randomBase()
		if err != nil {
			return out, fmt.Errorf("nonce: draw base: %w", err)
		}
		slot = Slot{Base: base, Counter: base, Initialized: true}
		if err := m.store.WriteNonceSlot(slot); err != nil {
			return out, fmt.Errorf("nonce: persist initial slot: %w", err)
		}
		m.log.Info("nonce slot initialized")
		return slot.Counter, nil
	}

	step := uint64(1)
	blocks := uint64((payloadLen + 15) / 16)
	if blocks >= blocksPerStepCeiling {
		step = 2
	}

	next, overflow := advance(slot.Counter, step)
	if overflow {
		slot.Exhausted = true
		if err := m.store.WriteNonceSlot(slot); err != nil {
			return out, fmt.Errorf("nonce: persist rollover latch: %w", err)
		}
		m.log.Warn("nonce counter rolled over, sealed writes disabled")
		return out, ErrRollover
	}

	slot.Counter = next
	if err := m.store.WriteNonceSlot(slot); err != nil {
		return out, fmt.Errorf("nonce: persist advanced slot: %w", err)
	}
	return slot.Counter, nil
}

func (m *Manager) randomBase() ([Size]byte, error) {
	var base [Size]byte
	if m.rand != nil {
		if _, err := io.ReadFull(m.rand, base[:]); err != nil {
			return base, err
		}
		return base, nil
	}
	b, err := primitives.RandomBytes(Size)
	if err != nil {
		return base, err
	}
	copy(base[:], b)
	return base, nil
}

// advance adds step to a 96-bit big-endian unsigned counter. The
// caller's invariant is that counter never precedes base; the only way
// that can be violated is for this addition to require a 97th bit, at
// which point overflow is true and the result must be discarded.
func advance(counter [Size]byte, step uint64) (next [Size]byte, overflow bool) {
	next = counter
	carry := step
	for i := len(next) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(next[i]) + (carry & 0xff)
		next[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	return next, carry > 0
}
