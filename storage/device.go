// Package storage provides the block-addressed persistence collaborator for
// the filesystem tree: block devices, the allocation bitmap and the node codec.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for block ids beyond the device
	ErrOutOfRange = errors.New("block id out of range")
	// ErrBlockSize is returned when a buffer is not exactly one block long
	ErrBlockSize = errors.New("buffer is not one block long")
)

// BlockDevice is raw fixed-size block I/O. Blocks that were never written
// read back as zeros.
type BlockDevice interface {
	ReadBlock(id uint64, buf []byte) error
	WriteBlock(id uint64, buf []byte) error
	Close() error
}

// geometry is embedded by devices for bounds checks
type geometry struct {
	blockSize  int
	blockCount uint64
}

func (g geometry) check(id uint64, buf []byte) error {
	if id >= g.blockCount {
		return fmt.Errorf("block %d of %d: %w", id, g.blockCount, ErrOutOfRange)
	}
	if len(buf) != g.blockSize {
		return fmt.Errorf("got %d bytes, block size %d: %w", len(buf), g.blockSize, ErrBlockSize)
	}
	return nil
}
