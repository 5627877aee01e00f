package store

import (
	"io/ioutil"
	"os"
	"testing"

	"dagbft/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

// 生成round 1..rounds的区块，每一轮每个authority一个区块
func makeDAG(t *testing.T, n int, rounds int) (*types.Committee, []*types.VerifiedBlock) {
	c, pvs := types.RandCommittee(n)
	prev := types.GenesisBlocks(c)
	all := append([]*types.VerifiedBlock{}, prev...)

	for r := 1; r <= rounds; r++ {
		ancestors := make([]types.BlockRef, len(prev))
		for i, b := range prev {
			ancestors[i] = b.Reference()
		}
		cur := make([]*types.VerifiedBlock, n)
		for i := 0; i < n; i++ {
			b := types.MakeBlock(types.Round(r), types.AuthorityIndex(i), int64(r), ancestors, types.Txs{types.Tx{byte(r), byte(i)}})
			require.NoError(t, pvs[i].SignBlock(b))
			cur[i] = types.NewVerifiedBlock(b)
		}
		all = append(all, cur...)
		prev = cur
	}
	return c, all
}

func TestBlockStoreWriteRead(t *testing.T) {
	bs := NewMemBlockStore()
	defer bs.Close()

	_, blocks := makeDAG(t, 4, 2)
	require.NoError(t, bs.WriteBlocks(blocks))

	missing := types.BlockRef{Round: 9, Author: 1}
	refs := []types.BlockRef{blocks[5].Reference(), missing, blocks[0].Reference()}

	read, err := bs.ReadBlocks(refs)
	require.NoError(t, err)
	require.Len(t, read, 3)
	assert.Equal(t, blocks[5].Reference(), read[0].Reference())
	assert.Nil(t, read[1])
	assert.Equal(t, blocks[0].Reference(), read[2].Reference())

	found, err := bs.ContainsBlocks(refs)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, found)
}

func TestBlockStoreScanAndLastRound(t *testing.T) {
	bs := NewBlockStoreWithDB(NewMemBlockStore().GetDB(), log.TestingLogger())

	last, err := bs.LastRound()
	require.NoError(t, err)
	assert.Equal(t, types.GenesisRound, last)

	_, blocks := makeDAG(t, 4, 3)
	require.NoError(t, bs.WriteBlocks(blocks))

	last, err = bs.LastRound()
	require.NoError(t, err)
	assert.Equal(t, types.Round(3), last)

	scanned, err := bs.ScanBlocks(2)
	require.NoError(t, err)
	require.Len(t, scanned, 8)
	for i := 1; i < len(scanned); i++ {
		assert.True(t, scanned[i-1].Reference().Less(scanned[i].Reference()), "scan must be ordered")
	}
	assert.Equal(t, types.Round(2), scanned[0].Round)

	all, err := bs.ScanBlocks(types.GenesisRound)
	require.NoError(t, err)
	assert.Len(t, all, len(blocks))
}

func TestMockStoreFailWrites(t *testing.T) {
	ms := NewMockStore()
	_, blocks := makeDAG(t, 4, 1)

	ms.SetFailWrites(true)
	assert.Equal(t, ErrMockWrite, ms.WriteBlocks(blocks))

	ms.SetFailWrites(false)
	require.NoError(t, ms.WriteBlocks(blocks))

	found, err := ms.ContainsBlocks([]types.BlockRef{blocks[4].Reference()})
	require.NoError(t, err)
	assert.True(t, found[0])
}

// 两种配置里允许的后端都能打开，goleveldb重新打开后数据还在
func TestNewBlockStoreBackends(t *testing.T) {
	_, blocks := makeDAG(t, 4, 1)

	mem, err := NewBlockStore("dag", MemDBBackend, "", log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, mem.WriteBlocks(blocks))
	require.NoError(t, mem.Close())

	dir, err := ioutil.TempDir("", "block_store_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	disk, err := NewBlockStore("dag", GoLevelDBBackend, dir, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, disk.WriteBlocks(blocks))
	require.NoError(t, disk.Close())

	reopened, err := NewBlockStore("dag", GoLevelDBBackend, dir, log.TestingLogger())
	require.NoError(t, err)
	defer reopened.Close()
	last, err := reopened.LastRound()
	require.NoError(t, err)
	assert.Equal(t, types.Round(1), last)

	_, err = NewBlockStore("dag", "nosuchdb", dir, log.TestingLogger())
	assert.Error(t, err)
}
