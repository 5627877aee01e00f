package store

import (
	"errors"
	"sync/atomic"

	"dagbft/types"
)

var ErrMockWrite = errors.New("mock store write failure")

// NewMockStore wraps an in-memory block store whose writes can be made to
// fail.
func NewMockStore() *MockStore {
	return &MockStore{BlockStore: NewMemBlockStore()}
}

// MockStore is a BlockStore with failure injection for WriteBlocks.
// Useful for testing.
type MockStore struct {
	*BlockStore

	failWrites int32
}

func (mock *MockStore) SetFailWrites(fail bool) {
	var v int32
	if fail {
		v = 1
	}
	atomic.StoreInt32(&mock.failWrites, v)
}

func (mock *MockStore) WriteBlocks(blocks []*types.VerifiedBlock) error {
	if atomic.LoadInt32(&mock.failWrites) == 1 {
		return ErrMockWrite
	}
	return mock.BlockStore.WriteBlocks(blocks)
}
