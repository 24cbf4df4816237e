package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/brettbedarf/treefs"
	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	superblockMagic   uint32 = 0x74726565 // "tree"
	superblockVersion uint32 = 1
)

// ErrNotFormatted is returned when opening a device without a valid superblock
var ErrNotFormatted = errors.New("device is not formatted")

// superblock is persisted XDR-encoded at block 0
type superblock struct {
	Magic        uint32
	Version      uint32
	VolumeID     string
	BlockSize    uint32
	BlockCount   uint64
	BitmapBlocks uint64
	RootID       uint64
}

func encodeSuperblock(sb *superblock) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, sb); err != nil {
		return nil, fmt.Errorf("failed to encode superblock: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSuperblock(data []byte) (*superblock, error) {
	var sb superblock
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &sb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFormatted, err)
	}
	if sb.Magic != superblockMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrNotFormatted, sb.Magic)
	}
	if sb.Version != superblockVersion {
		return nil, fmt.Errorf("unsupported superblock version %d", sb.Version)
	}
	return &sb, nil
}

// encodeRecord is the payload spread over a node's block chain
func encodeRecord(rec *treefs.NodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, rec); err != nil {
		return nil, fmt.Errorf("failed to encode node %d: %w", rec.InodeID, err)
	}
	return buf.Bytes(), nil
}

// decodeRecord ignores trailing padding after the record
func decodeRecord(payload []byte) (*treefs.NodeRecord, error) {
	var rec treefs.NodeRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return &rec, nil
}
