package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/google/uuid"
)

// Layout:
//
//	block 0                      superblock
//	blocks 1..1+bitmapBlocks     allocation bitmap
//	block 1+bitmapBlocks         root directory (RootID)
//	remaining blocks             node chains, allocated on demand
//
// Every node block ends with a [treefs.LinkSize] little-endian id of the next
// block in the node's chain; 0 terminates the chain.
const superblockCount = 1

// BlockStore implements [treefs.NodeStore] over a [BlockDevice]
type BlockStore struct {
	dev        BlockDevice
	blockSize  int
	blockCount uint64
	sb         superblock
	alloc      *Allocator
	mu         sync.Mutex
}

var _ treefs.NodeStore = (*BlockStore)(nil)
var _ treefs.UsageReporter = (*BlockStore)(nil)

func bitmapBlocks(blockSize int, blockCount uint64) uint64 {
	size := uint64(NewAllocator(blockCount, 0).StorageSize())
	return (size + uint64(blockSize) - 1) / uint64(blockSize)
}

func newBlockStore(dev BlockDevice, sb superblock) *BlockStore {
	return &BlockStore{
		dev:        dev,
		blockSize:  int(sb.BlockSize),
		blockCount: sb.BlockCount,
		sb:         sb,
		alloc:      NewAllocator(sb.BlockCount, sb.RootID+1),
	}
}

// Format writes a fresh superblock, an empty bitmap and a zeroed root block.
// The root node itself is written by the filesystem tree.
func Format(dev BlockDevice, blockSize int, blockCount uint64) (*BlockStore, error) {
	logger := util.GetLogger("BlockStore.Format")

	if blockSize <= treefs.LinkSize {
		return nil, fmt.Errorf("block size %d must exceed the %d byte chain link", blockSize, treefs.LinkSize)
	}
	bmBlocks := bitmapBlocks(blockSize, blockCount)
	rootID := superblockCount + bmBlocks
	if rootID >= blockCount {
		return nil, fmt.Errorf("%d blocks cannot hold superblock, %d bitmap blocks and root", blockCount, bmBlocks)
	}

	sb := superblock{
		Magic:        superblockMagic,
		Version:      superblockVersion,
		VolumeID:     uuid.NewString(),
		BlockSize:    uint32(blockSize),
		BlockCount:   blockCount,
		BitmapBlocks: bmBlocks,
		RootID:       rootID,
	}
	s := newBlockStore(dev, sb)

	data, err := encodeSuperblock(&sb)
	if err != nil {
		return nil, err
	}
	if len(data) > blockSize {
		return nil, fmt.Errorf("superblock needs %d bytes, block size is %d", len(data), blockSize)
	}
	if err := s.writePadded(0, data); err != nil {
		return nil, fmt.Errorf("failed to write superblock: %w", err)
	}
	if err := s.writePadded(rootID, nil); err != nil {
		return nil, fmt.Errorf("failed to zero root block: %w", err)
	}
	if err := s.SaveBitmap(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("volume", sb.VolumeID).
		Int("blockSize", blockSize).
		Uint64("blocks", blockCount).
		Uint64("bitmapBlocks", bmBlocks).
		Uint64("root", rootID).
		Msg("Formatted volume")
	return s, nil
}

// Open reads the superblock and bitmap of a formatted device. Returns an error
// wrapping [ErrNotFormatted] when the device holds no volume.
func Open(dev BlockDevice, blockSize int) (*BlockStore, error) {
	buf := make([]byte, blockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}
	sb, err := decodeSuperblock(buf)
	if err != nil {
		return nil, err
	}
	if int(sb.BlockSize) != blockSize {
		return nil, fmt.Errorf("volume block size %d, configured %d", sb.BlockSize, blockSize)
	}
	s := newBlockStore(dev, *sb)
	if err := s.LoadBitmap(); err != nil {
		return nil, err
	}
	logger := util.GetLogger("BlockStore.Open")
	logger.Info().
		Str("volume", sb.VolumeID).
		Uint64("free", s.FreeBlocks()).
		Msg("Opened volume")
	return s, nil
}

// OpenOrFormat opens dev, formatting it first if it holds no volume.
// formatted reports whether a new volume was created.
func OpenOrFormat(dev BlockDevice, blockSize int, blockCount uint64) (s *BlockStore, formatted bool, err error) {
	s, err = Open(dev, blockSize)
	if err == nil {
		return s, false, nil
	}
	if !isNotFormatted(err) {
		return nil, false, err
	}
	s, err = Format(dev, blockSize, blockCount)
	return s, err == nil, err
}

// VolumeID is the uuid assigned when the volume was formatted
func (s *BlockStore) VolumeID() string {
	return s.sb.VolumeID
}

func (s *BlockStore) BlockSize() int {
	return s.blockSize
}

func (s *BlockStore) RootID() uint64 {
	return s.sb.RootID
}

func (s *BlockStore) TotalBlocks() uint64 {
	return s.blockCount
}

func (s *BlockStore) FreeBlocks() uint64 {
	return s.alloc.FreeCount()
}

// InUse reports whether id is marked allocated in the bitmap
func (s *BlockStore) InUse(id uint64) bool {
	return s.alloc.InUse(id)
}

func (s *BlockStore) Close() error {
	return s.dev.Close()
}

// AllocateID marks a free block in use and zeroes it so a recycled id never
// carries a stale chain link
func (s *BlockStore) AllocateID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocateLocked()
}

func (s *BlockStore) allocateLocked() (uint64, error) {
	id, err := s.alloc.Allocate()
	if err != nil {
		return 0, err
	}
	if err := s.writePadded(id, nil); err != nil {
		_ = s.alloc.Free(id)
		return 0, fmt.Errorf("failed to zero block %d: %w", id, err)
	}
	return id, nil
}

func (s *BlockStore) FreeID(id uint64) error {
	return s.alloc.Free(id)
}

func (s *BlockStore) ReadBlock(id uint64, buf []byte) error {
	return s.dev.ReadBlock(id, buf)
}

func (s *BlockStore) payloadSize() int {
	return s.blockSize - treefs.LinkSize
}

// chain returns the ids of the block chain starting at head
func (s *BlockStore) chain(head uint64, buf []byte) ([]uint64, error) {
	ids := []uint64{head}
	next := head
	for {
		if err := s.dev.ReadBlock(next, buf); err != nil {
			return nil, fmt.Errorf("failed to read block %d: %w", next, err)
		}
		next = binary.LittleEndian.Uint64(buf[s.payloadSize():])
		if next == 0 {
			return ids, nil
		}
		if uint64(len(ids)) >= s.blockCount {
			return nil, fmt.Errorf("block chain from %d does not terminate", head)
		}
		ids = append(ids, next)
	}
}

// WriteNode spreads the encoded record over the node's chain, reusing its
// existing blocks, extending the chain from the allocator and freeing any
// surplus blocks
func (s *BlockStore) WriteNode(rec *treefs.NodeRecord) (int, error) {
	logger := util.GetLogger("BlockStore.WriteNode")

	payload, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}
	per := s.payloadSize()
	need := max(1, (len(payload)+per-1)/per)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, s.blockSize)
	ids, err := s.chain(rec.InodeID, buf)
	if err != nil {
		return 0, err
	}
	var surplus []uint64
	if len(ids) > need {
		surplus = ids[need:]
		ids = ids[:need]
	}
	var added []uint64
	for len(ids) < need {
		id, err := s.allocateLocked()
		if err != nil {
			for _, a := range added {
				_ = s.alloc.Free(a)
			}
			return 0, fmt.Errorf("failed to extend chain of node %d: %w", rec.InodeID, err)
		}
		ids = append(ids, id)
		added = append(added, id)
	}

	for i, id := range ids {
		clear(buf)
		start := i * per
		copy(buf[:per], payload[start:min(start+per, len(payload))])
		if i+1 < len(ids) {
			binary.LittleEndian.PutUint64(buf[per:], ids[i+1])
		}
		if err := s.dev.WriteBlock(id, buf); err != nil {
			return 0, fmt.Errorf("failed to write block %d of node %d: %w", id, rec.InodeID, err)
		}
	}
	for _, id := range surplus {
		if err := s.alloc.Free(id); err != nil {
			logger.Warn().Err(err).Uint64("block", id).Msg("Failed to free surplus block")
		}
	}

	logger.Trace().
		Uint64("ino", rec.InodeID).
		Int("bytes", len(payload)).
		Int("blocks", len(ids)).
		Int("freed", len(surplus)).
		Msg("Wrote node")
	return len(ids), nil
}

func (s *BlockStore) ReadNode(id uint64) (*treefs.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, s.blockSize)
	per := s.payloadSize()
	ids, err := s.chain(id, buf)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(ids)*per)
	for _, blk := range ids {
		if err := s.dev.ReadBlock(blk, buf); err != nil {
			return nil, fmt.Errorf("failed to read block %d: %w", blk, err)
		}
		payload = append(payload, buf[:per]...)
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	return rec, nil
}

// LoadBitmap replaces the in-memory bitmap with the persisted one
func (s *BlockStore) LoadBitmap() error {
	size := s.alloc.StorageSize()
	data := make([]byte, 0, int(s.sb.BitmapBlocks)*s.blockSize)
	buf := make([]byte, s.blockSize)
	for i := uint64(0); i < s.sb.BitmapBlocks; i++ {
		if err := s.dev.ReadBlock(superblockCount+i, buf); err != nil {
			return fmt.Errorf("failed to read bitmap block %d: %w", i, err)
		}
		data = append(data, buf...)
	}
	if len(data) < size {
		return fmt.Errorf("bitmap needs %d bytes, found %d", size, len(data))
	}
	return s.alloc.UnmarshalBinary(data[:size])
}

func (s *BlockStore) SaveBitmap() error {
	data, err := s.alloc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode bitmap: %w", err)
	}
	for i := uint64(0); i < s.sb.BitmapBlocks; i++ {
		start := int(i) * s.blockSize
		end := min(start+s.blockSize, len(data))
		var chunk []byte
		if start < len(data) {
			chunk = data[start:end]
		}
		if err := s.writePadded(superblockCount+i, chunk); err != nil {
			return fmt.Errorf("failed to write bitmap block %d: %w", i, err)
		}
	}
	return nil
}

// writePadded writes data zero-padded to a full block
func (s *BlockStore) writePadded(id uint64, data []byte) error {
	buf := make([]byte, s.blockSize)
	copy(buf, data)
	return s.dev.WriteBlock(id, buf)
}
