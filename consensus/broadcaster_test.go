package consensus

import (
	"testing"
	"time"

	cfg "dagbft/config"
	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
)

// 两个core：A提案的区块经过Broadcaster发送给B，B缺少的祖先从A的store里补齐
func TestBroadcasterForwardsBlocks(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	dag := newTestDAG(4)
	evsw := events.NewEventSwitch()
	require.NoError(t, evsw.Start())
	defer evsw.Stop() // nolint: errcheck

	stA := store.NewMemBlockStore()
	coreA, err := NewCore(cfg.TestConsensusConfig(), dag.committee, 0, dag.signers[0], stA,
		WithCoreClock(clock.NewMock()), WithEventSwitch(evsw))
	require.NoError(t, err)
	coreB := dag.newCore(t, 1, store.NewMemBlockStore(), clock.NewMock())

	a, b := NewCoreThread(coreA, 4), NewCoreThread(coreB, 4)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	bc := NewBroadcaster(evsw, stA, 8)
	bc.SetLogger(getTestLog())
	bc.AddPeer("b", b)
	require.NoError(t, bc.Start())
	assert.Equal(t, 1, bc.NumPeers())

	// A proposes round 1, then round 2 forced after blocks from 2 and 3
	require.NoError(t, a.ForceNewBlock(testCtx(), 1))
	round1 := dag.round(t, 1, dag.genesisRefs(), 2, 3)
	_, err = a.AddBlocks(testCtx(), round1)
	require.NoError(t, err)
	require.NoError(t, a.ForceNewBlock(testCtx(), 2))

	require.Eventually(t, func() bool {
		blocks, err := b.BlocksAtRound(testCtx(), 2)
		return err == nil && len(blocks) == 1 && blocks[0].Author == 0
	}, waitFor, tick)

	// round 1 blocks of 2 and 3 arrived as missing ancestors
	blocks, err := b.BlocksAtRound(testCtx(), 1)
	require.NoError(t, err)
	assert.Len(t, blocks, 4, "A, B own and the two forwarded ancestors")
	missing, err := b.GetMissingBlocks(testCtx())
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, bc.Stop())
	bc.Wait()
	for _, ct := range []*CoreThread{a, b} {
		require.NoError(t, ct.Stop())
		ct.Wait()
	}
	assert.Equal(t, []types.Round{0, 1, 2}, roundsOf(coreA))
}

func roundsOf(core *Core) []types.Round {
	var rounds []types.Round
	for _, b := range core.byAuthor[core.own] {
		rounds = append(rounds, b.Round)
	}
	return rounds
}
