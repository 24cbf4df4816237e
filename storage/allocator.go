package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

var (
	// ErrNoSpace is returned when every block is in use
	ErrNoSpace = errors.New("no free blocks")
	// ErrReserved is returned when freeing a block the allocator never hands out
	ErrReserved = errors.New("block is reserved")
)

// Allocator tracks block usage in a bitmap. Ids below reserved (superblock,
// bitmap and root blocks) are permanently in use.
type Allocator struct {
	mu       sync.Mutex
	bits     *bitset.BitSet
	total    uint64
	reserved uint64
	hint     uint64 // next id to try; allocation is first-fit from here
}

func NewAllocator(total, reserved uint64) *Allocator {
	a := &Allocator{
		bits:     bitset.New(uint(total)),
		total:    total,
		reserved: reserved,
	}
	a.reserve()
	return a
}

func (a *Allocator) reserve() {
	for i := uint64(0); i < a.reserved && i < a.total; i++ {
		a.bits.Set(uint(i))
	}
	a.hint = a.reserved
}

// Allocate marks and returns the first free id at or after the last
// allocation, wrapping around once
func (a *Allocator) Allocate() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, ok := a.bits.NextClear(uint(a.hint))
	if !ok || uint64(id) >= a.total {
		id, ok = a.bits.NextClear(uint(a.reserved))
		if !ok || uint64(id) >= a.total {
			return 0, ErrNoSpace
		}
	}
	a.bits.Set(id)
	a.hint = uint64(id) + 1
	return uint64(id), nil
}

// Free clears id. Freeing an already free id is a no-op.
func (a *Allocator) Free(id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id >= a.total {
		return fmt.Errorf("free block %d: %w", id, ErrOutOfRange)
	}
	if id < a.reserved {
		return fmt.Errorf("free block %d: %w", id, ErrReserved)
	}
	a.bits.Clear(uint(id))
	if id < a.hint {
		a.hint = id
	}
	return nil
}

// InUse reports whether id is allocated
func (a *Allocator) InUse(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return id < a.total && a.bits.Test(uint(id))
}

func (a *Allocator) Total() uint64 {
	return a.total
}

// FreeCount returns how many ids can still be allocated
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total - uint64(a.bits.Count())
}

// StorageSize is the length of the MarshalBinary encoding for this geometry
func (a *Allocator) StorageSize() int {
	return a.bits.BinaryStorageSize()
}

func (a *Allocator) MarshalBinary() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bits.MarshalBinary()
}

// UnmarshalBinary replaces the bitmap with data; reserved ids stay in use
func (a *Allocator) UnmarshalBinary(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bits := &bitset.BitSet{}
	if err := bits.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("failed to decode bitmap: %w", err)
	}
	if uint64(bits.Len()) != a.total {
		return fmt.Errorf("bitmap holds %d blocks, volume has %d", bits.Len(), a.total)
	}
	a.bits = bits
	a.reserve()
	return nil
}
