// Package treefs contains core domain types and interfaces for the treefs filesystem
package treefs

// LinkSize is the width in bytes of the next-block link stored at the end of
// every block of a node's overflow chain. A zero link terminates the chain.
const LinkSize = 8

// NodeStore is the persistence collaborator consumed by the filesystem tree.
// It owns the allocator bitmap, raw block I/O and node (de)serialization; the
// tree only ever addresses nodes by their persistent identifier.
//
// All calls are blocking and complete or fail before returning.
type NodeStore interface {
	// AllocateID returns a fresh, unused block identifier
	AllocateID() (uint64, error)

	// WriteNode serializes rec and persists it under rec.InodeID.
	// Returns the number of physical blocks the node now occupies
	WriteNode(rec *NodeRecord) (int, error)

	// ReadNode deserializes the node persisted under id
	ReadNode(id uint64) (*NodeRecord, error)

	// ReadBlock reads the raw block id into buf; len(buf) must be BlockSize()
	ReadBlock(id uint64, buf []byte) error

	// FreeID marks id reclaimable in the allocator bitmap
	FreeID(id uint64) error

	LoadBitmap() error
	SaveBitmap() error

	// BlockSize is the size in bytes of one block, including the trailing link
	BlockSize() int

	// RootID is the identifier the root directory is persisted under
	RootID() uint64
}

// UsageReporter is optionally implemented by a [NodeStore] that can report
// block usage for statfs
type UsageReporter interface {
	TotalBlocks() uint64
	FreeBlocks() uint64
}
