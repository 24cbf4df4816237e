package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FileDevice stores blocks in a single disk image file, block id * block size
// being the byte offset.
type FileDevice struct {
	geometry
	f *os.File
}

// OpenFileDevice opens or creates the image at path and sizes it to hold
// blockCount blocks
func OpenFileDevice(path string, blockSize int, blockCount uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	size := int64(blockSize) * int64(blockCount)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size image %s: %w", path, err)
		}
	}
	return &FileDevice{
		geometry: geometry{blockSize: blockSize, blockCount: blockCount},
		f:        f,
	}, nil
}

func (d *FileDevice) ReadBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	n, err := d.f.ReadAt(buf, int64(id)*int64(d.blockSize))
	if errors.Is(err, io.EOF) {
		clear(buf[n:])
		return nil
	}
	return err
}

func (d *FileDevice) WriteBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	_, err := d.f.WriteAt(buf, int64(id)*int64(d.blockSize))
	return err
}

// Sync flushes the image to stable storage
func (d *FileDevice) Sync() error {
	return d.f.Sync()
}

func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
