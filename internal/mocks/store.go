package mocks

import (
	"github.com/brettbedarf/treefs"
	"github.com/stretchr/testify/mock"
)

// MockNodeStore implements treefs.NodeStore for testing across packages
type MockNodeStore struct {
	mock.Mock
}

func (m *MockNodeStore) AllocateID() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockNodeStore) WriteNode(rec *treefs.NodeRecord) (int, error) {
	args := m.Called(rec)

	// Handle function return types (for tests inspecting the record)
	if fn, ok := args.Get(0).(func(*treefs.NodeRecord) int); ok {
		return fn(rec), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockNodeStore) ReadNode(id uint64) (*treefs.NodeRecord, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*treefs.NodeRecord), args.Error(1)
}

func (m *MockNodeStore) ReadBlock(id uint64, buf []byte) error {
	args := m.Called(id, buf)
	return args.Error(0)
}

func (m *MockNodeStore) FreeID(id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockNodeStore) LoadBitmap() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockNodeStore) SaveBitmap() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockNodeStore) BlockSize() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockNodeStore) RootID() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}
