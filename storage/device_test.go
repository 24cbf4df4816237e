package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and returns NoSuchKey for missing keys
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	bucket  string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = *in.Bucket
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

const testBlockSize = 128

func testDevices(t *testing.T) map[string]BlockDevice {
	t.Helper()
	file, err := OpenFileDevice(filepath.Join(t.TempDir(), "image"), testBlockSize, 16)
	require.NoError(t, err)
	badger, err := OpenBadgerDevice("", testBlockSize, 16)
	require.NoError(t, err)

	devs := map[string]BlockDevice{
		"memory": NewMemoryDevice(testBlockSize, 16),
		"file":   file,
		"badger": badger,
		"s3":     NewS3Device(newFakeS3(), S3Config{Bucket: "b", KeyPrefix: "blocks/"}, testBlockSize, 16),
	}
	t.Cleanup(func() {
		for _, d := range devs {
			_ = d.Close()
		}
	})
	return devs
}

func TestBlockDevices(t *testing.T) {
	t.Parallel()
	for name, dev := range testDevices(t) {
		t.Run(name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xff}, testBlockSize)
			require.NoError(t, dev.ReadBlock(3, buf))
			assert.Equal(t, make([]byte, testBlockSize), buf, "unwritten block reads as zeros")

			want := bytes.Repeat([]byte("abcd"), testBlockSize/4)
			require.NoError(t, dev.WriteBlock(3, want))
			// Mutating the caller's buffer must not change the stored block
			want[0] = 'z'
			require.NoError(t, dev.ReadBlock(3, buf))
			assert.Equal(t, byte('a'), buf[0])
			assert.Equal(t, want[1:], buf[1:])

			assert.ErrorIs(t, dev.ReadBlock(16, buf), ErrOutOfRange)
			assert.ErrorIs(t, dev.WriteBlock(0, buf[:10]), ErrBlockSize)
		})
	}
}

func TestFileDevice_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "image")
	dev, err := OpenFileDevice(path, testBlockSize, 8)
	require.NoError(t, err)
	want := bytes.Repeat([]byte{7}, testBlockSize)
	require.NoError(t, dev.WriteBlock(5, want))
	require.NoError(t, dev.Close())

	dev, err = OpenFileDevice(path, testBlockSize, 8)
	require.NoError(t, err)
	defer dev.Close()
	got := make([]byte, testBlockSize)
	require.NoError(t, dev.ReadBlock(5, got))
	assert.Equal(t, want, got)
}

func TestS3Device_Keys(t *testing.T) {
	t.Parallel()
	fake := newFakeS3()
	dev := NewS3Device(fake, S3Config{Bucket: "vol", KeyPrefix: "blocks/"}, testBlockSize, 16)
	require.NoError(t, dev.WriteBlock(10, make([]byte, testBlockSize)))

	assert.Equal(t, "vol", fake.bucket)
	assert.Contains(t, fake.objects, "blocks/000000000000000a")
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()
	assert.False(t, isNotFoundError(nil))
	assert.True(t, isNotFoundError(&types.NoSuchKey{}))
	assert.True(t, isNotFoundError(&types.NotFound{}))
	assert.False(t, isNotFoundError(io.ErrUnexpectedEOF))
}
