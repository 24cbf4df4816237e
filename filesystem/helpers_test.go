package filesystem

import (
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/mocks"
	"github.com/brettbedarf/treefs/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBlockSize  = 512
	testBlockCount = 1024
	testRootID     = uint64(2)
)

func createTestConfig() *config.Config {
	return config.NewDefaultConfig()
}

// newTestTree loads a tree over a freshly formatted in-memory volume
func newTestTree(t *testing.T) (*Tree, *storage.BlockStore) {
	t.Helper()
	store, err := storage.Format(storage.NewMemoryDevice(testBlockSize, testBlockCount), testBlockSize, testBlockCount)
	require.NoError(t, err)
	tree, err := Load(createTestConfig(), store, 1000, 1000)
	require.NoError(t, err)
	return tree, store
}

// newMockTree loads an empty tree over a mock store; callers add expectations
// for the operations under test
func newMockTree(t *testing.T) (*Tree, *mocks.MockNodeStore) {
	t.Helper()
	store := &mocks.MockNodeStore{}
	store.On("LoadBitmap").Return(nil).Once()
	store.On("RootID").Return(testRootID)
	store.On("BlockSize").Return(testBlockSize).Maybe()
	store.On("ReadNode", testRootID).Return(&treefs.NodeRecord{}, nil).Once()
	store.On("WriteNode", mock.MatchedBy(func(rec *treefs.NodeRecord) bool {
		return rec.InodeID == testRootID
	})).Return(1, nil).Once()

	tree, err := Load(createTestConfig(), store, 0, 0)
	require.NoError(t, err)
	return tree, store
}

func mustCreate(t *testing.T, tree *Tree, path string, typ treefs.NodeCreateRequestType) *Node {
	t.Helper()
	node, err := tree.Create(&treefs.NodeRequest{Path: path, Type: typ})
	require.NoError(t, err)
	return node
}

func childNames(n *Node) []string {
	names := make([]string, 0, len(n.children))
	for _, ch := range n.Children() {
		names = append(names, ch.Name())
	}
	return names
}
