package storage

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryDevice keeps blocks in a concurrent map. Used for ephemeral mounts
// and tests.
type MemoryDevice struct {
	geometry
	blocks *xsync.Map[uint64, []byte]
}

func NewMemoryDevice(blockSize int, blockCount uint64) *MemoryDevice {
	return &MemoryDevice{
		geometry: geometry{blockSize: blockSize, blockCount: blockCount},
		blocks:   xsync.NewMap[uint64, []byte](),
	}
}

func (d *MemoryDevice) ReadBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	if blk, ok := d.blocks.Load(id); ok {
		copy(buf, blk)
		return nil
	}
	clear(buf)
	return nil
}

func (d *MemoryDevice) WriteBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	blk := make([]byte, len(buf))
	copy(blk, buf)
	d.blocks.Store(id, blk)
	return nil
}

// Written returns how many blocks have been stored
func (d *MemoryDevice) Written() int {
	return d.blocks.Size()
}

func (d *MemoryDevice) Close() error {
	return nil
}
