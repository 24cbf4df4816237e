package storage

import (
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCodec(t *testing.T) {
	t.Parallel()
	rec := &treefs.NodeRecord{
		Kind:     treefs.DirKind,
		Name:     "docs",
		Fullname: "/home/docs",
		UID:      1000,
		GID:      1000,
		Perm:     0o755,
		Nlink:    3,
		InodeID:  42,
		Mtime:    1700000000000000000,
		ChildIDs: []uint64{43, 44},
	}
	data, err := encodeRecord(rec)
	require.NoError(t, err)

	// Trailing block padding is ignored
	padded := append(data, make([]byte, 64)...)
	got, err := decodeRecord(padded)
	require.NoError(t, err)
	assert.Equal(t, rec.Fullname, got.Fullname)
	assert.Equal(t, rec.ChildIDs, got.ChildIDs)
	assert.Equal(t, rec.Nlink, got.Nlink)
	assert.Equal(t, rec.Mtime, got.Mtime)
	assert.Empty(t, got.Data)
}

func TestDecodeSuperblock(t *testing.T) {
	t.Parallel()

	t.Run("zeroed block is not formatted", func(t *testing.T) {
		t.Parallel()
		_, err := decodeSuperblock(make([]byte, 512))
		assert.ErrorIs(t, err, ErrNotFormatted)
	})

	t.Run("unknown version", func(t *testing.T) {
		t.Parallel()
		data, err := encodeSuperblock(&superblock{Magic: superblockMagic, Version: 9})
		require.NoError(t, err)
		_, err = decodeSuperblock(data)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFormatted)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		sb := &superblock{
			Magic:        superblockMagic,
			Version:      superblockVersion,
			VolumeID:     "vol",
			BlockSize:    512,
			BlockCount:   64,
			BitmapBlocks: 1,
			RootID:       2,
		}
		data, err := encodeSuperblock(sb)
		require.NoError(t, err)
		got, err := decodeSuperblock(data)
		require.NoError(t, err)
		assert.Equal(t, sb, got)
	})
}
