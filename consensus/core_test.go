package consensus

import (
	"testing"
	"time"

	cfg "dagbft/config"
	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
)

func TestNewCoreGenesis(t *testing.T) {
	dag := newTestDAG(4)
	core := dag.newCore(t, 2, store.NewMemBlockStore(), clock.NewMock())

	// 所有genesis区块被接受后时钟进入round 1
	assert.Equal(t, types.Round(1), core.Round())
	assert.Equal(t, types.Round(1), core.RoundSignal().Round())
	assert.Equal(t, types.GenesisRound, core.LastProposedRound())
	assert.Len(t, core.BlocksAtRound(types.GenesisRound), 4)
	assert.Empty(t, core.MissingBlocks())
}

func TestNewCoreUnknownAuthority(t *testing.T) {
	dag := newTestDAG(4)
	_, err := NewCore(nil, dag.committee, 4, dag.signers[0], store.NewMemBlockStore())
	assert.Error(t, err)
}

func TestCoreProposeWithLeader(t *testing.T) {
	mock := clock.NewMock()
	dag := newTestDAG(4)
	core := dag.newCore(t, 1, store.NewMemBlockStore(), mock)

	missing, err := core.AddBlocks(nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	require.Equal(t, types.Round(1), core.LastProposedRound())

	own := core.BlocksAtRound(1)
	require.Len(t, own, 1)
	assert.Equal(t, types.AuthorityIndex(1), own[0].Author)
	assert.ElementsMatch(t, dag.genesisRefs(), own[0].Ancestors)

	// authority 1 leads round 1, quorum with 0 and 2
	round1 := dag.round(t, 1, dag.genesisRefs(), 0, 2)
	_, err = core.AddBlocks(round1)
	require.NoError(t, err)
	assert.Equal(t, types.Round(2), core.Round())
	assert.Equal(t, types.Round(1), core.LastProposedRound(), "min round delay not elapsed")

	mock.Add(time.Second)
	_, err = core.AddBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Round(2), core.LastProposedRound())
	assert.EqualValues(t, 0, core.MetricItem().ForcedBlocks)
}

func TestCoreWaitsForLeader(t *testing.T) {
	mock := clock.NewMock()
	dag := newTestDAG(4)
	core := dag.newCore(t, 0, store.NewMemBlockStore(), mock)

	_, err := core.AddBlocks(nil)
	require.NoError(t, err)
	require.Equal(t, types.Round(1), core.LastProposedRound())

	// leader of round 1 is authority 1, its block is missing
	_, err = core.AddBlocks(dag.round(t, 1, dag.genesisRefs(), 2, 3))
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = core.AddBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Round(2), core.Round())
	assert.Equal(t, types.Round(1), core.LastProposedRound())

	require.NoError(t, core.ForceNewBlock(2))
	assert.Equal(t, types.Round(2), core.LastProposedRound())
	assert.EqualValues(t, 1, core.MetricItem().ForcedBlocks)

	// 同一个round不会重复提案
	require.NoError(t, core.ForceNewBlock(2))
	require.NoError(t, core.ForceNewBlock(1))
	assert.Len(t, core.BlocksAtRound(2), 1)
	assert.EqualValues(t, 2, core.MetricItem().ProposedBlocks)
}

func TestCoreForceNewBlockStaleRound(t *testing.T) {
	dag := newTestDAG(4)
	core := dag.newCore(t, 0, store.NewMemBlockStore(), clock.NewMock())

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)
	_, err := core.AddBlocks(round1)
	require.NoError(t, err)
	require.Equal(t, types.Round(2), core.Round())
	proposed := core.LastProposedRound()

	// the clock is past round 1
	require.NoError(t, core.ForceNewBlock(1))
	assert.Equal(t, proposed, core.LastProposedRound())
}

func TestCoreSuspendsBlocks(t *testing.T) {
	dag := newTestDAG(4)
	core := dag.newCore(t, 0, store.NewMemBlockStore(), clock.NewMock())

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)
	round2 := dag.block(t, 2, 1, refsOf(round1))

	missing, err := core.AddBlocks([]*types.VerifiedBlock{round2})
	require.NoError(t, err)
	expected := types.SortBlockRefs(refsOf(round1))
	assert.Equal(t, expected, missing)
	assert.Equal(t, expected, core.MissingBlocks())
	assert.Empty(t, core.BlocksAtRound(2))

	// 只补一个祖先，round2区块仍然挂起
	missing, err = core.AddBlocks(round1[:1])
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, expected[1:], types.SortBlockRefs(core.MissingBlocks()))
	assert.Equal(t, 1, core.MetricItem().SuspendedBlocks)

	_, err = core.AddBlocks(round1[1:])
	require.NoError(t, err)
	assert.Empty(t, core.MissingBlocks())
	assert.Len(t, core.BlocksAtRound(2), 1)
	assert.Equal(t, 0, core.MetricItem().SuspendedBlocks)
	assert.Equal(t, types.Round(2), core.Round())
}

func TestCoreDropsInvalidBlocks(t *testing.T) {
	dag := newTestDAG(4)
	core := dag.newCore(t, 0, store.NewMemBlockStore(), clock.NewMock())

	unsigned := types.NewVerifiedBlock(types.MakeBlock(1, 2, 0, dag.genesisRefs(), nil))
	missing, err := core.AddBlocks([]*types.VerifiedBlock{nil, unsigned})
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Len(t, core.BlocksAtRound(1), 1, "only the own block")
}

func TestCoreStoreFailure(t *testing.T) {
	dag := newTestDAG(4)
	st := store.NewMockStore()
	core := dag.newCore(t, 0, st, clock.NewMock())

	st.SetFailWrites(true)
	err := core.ForceNewBlock(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrMockWrite))
	assert.False(t, IsTerminalDispatchError(err))
	assert.Equal(t, types.GenesisRound, core.LastProposedRound())

	st.SetFailWrites(false)
	require.NoError(t, core.ForceNewBlock(1))
	assert.Equal(t, types.Round(1), core.LastProposedRound())
}

// 写存储失败时DAG不能前进，重发同一批区块后区块必须落盘
func TestCoreAddBlocksStoreFailure(t *testing.T) {
	dag := newTestDAG(4)
	st := store.NewMockStore()
	core := dag.newCore(t, 0, st, clock.NewMock())

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)

	st.SetFailWrites(true)
	_, err := core.AddBlocks(round1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrMockWrite))
	assert.False(t, IsTerminalDispatchError(err))
	assert.Equal(t, types.Round(1), core.Round())
	assert.Equal(t, types.Round(1), core.RoundSignal().Round())
	assert.Empty(t, core.BlocksAtRound(1))

	st.SetFailWrites(false)
	_, err = core.AddBlocks(round1)
	require.NoError(t, err)
	assert.True(t, core.Round() >= 2)
	assert.Len(t, core.BlocksAtRound(1), 3)

	found, err := st.ContainsBlocks(refsOf(round1))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, found)

	recovered := dag.newCore(t, 0, st, clock.NewMock())
	assert.Equal(t, core.Round(), recovered.Round())
	assert.Len(t, recovered.BlocksAtRound(1), 3)
	assert.Equal(t, 0, recovered.MetricItem().SuspendedBlocks)
}

// 挂起的区块也会落盘，重启后依然挂起，祖先到达后被接受
func TestCoreRecoverSuspended(t *testing.T) {
	dag := newTestDAG(4)
	st := store.NewMemBlockStore()
	core := dag.newCore(t, 0, st, clock.NewMock())

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)
	round2 := dag.block(t, 2, 1, refsOf(round1))
	_, err := core.AddBlocks([]*types.VerifiedBlock{round2})
	require.NoError(t, err)

	recovered := dag.newCore(t, 0, st, clock.NewMock())
	assert.Equal(t, core.MissingBlocks(), recovered.MissingBlocks())
	assert.Equal(t, 1, recovered.MetricItem().SuspendedBlocks)

	_, err = recovered.AddBlocks(round1)
	require.NoError(t, err)
	assert.Empty(t, recovered.MissingBlocks())
	assert.Contains(t, refsOf(recovered.BlocksAtRound(2)), round2.Reference())
}

func TestCoreRecover(t *testing.T) {
	mock := clock.NewMock()
	dag := newTestDAG(4)
	st := store.NewMemBlockStore()
	core := dag.newCore(t, 0, st, mock)

	_, err := core.AddBlocks(dag.round(t, 1, dag.genesisRefs(), 1, 2, 3))
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = core.AddBlocks(nil)
	require.NoError(t, err)
	round, proposed := core.Round(), core.LastProposedRound()
	require.Equal(t, types.Round(2), proposed)

	recovered := dag.newCore(t, 0, st, mock)
	assert.Equal(t, round, recovered.Round())
	assert.Equal(t, proposed, recovered.LastProposedRound())
	assert.Len(t, recovered.BlocksAtRound(1), 3, "own authority skipped round 1")
}

func TestCoreFiresEvents(t *testing.T) {
	dag := newTestDAG(4)
	evsw := events.NewEventSwitch()
	require.NoError(t, evsw.Start())
	defer evsw.Stop() // nolint: errcheck

	var (
		proposed []*types.VerifiedBlock
		rounds   []types.Round
	)
	require.NoError(t, evsw.AddListenerForEvent("test", EventNewBlock, func(data events.EventData) {
		proposed = append(proposed, data.(*types.VerifiedBlock))
	}))
	require.NoError(t, evsw.AddListenerForEvent("test", EventNewRound, func(data events.EventData) {
		rounds = append(rounds, data.(EventDataNewRound).Round)
	}))

	core, err := NewCore(cfg.TestConsensusConfig(), dag.committee, 0, dag.signers[0], store.NewMemBlockStore(),
		WithCoreClock(clock.NewMock()), WithEventSwitch(evsw))
	require.NoError(t, err)
	require.NoError(t, core.ForceNewBlock(1))
	_, err = core.AddBlocks(dag.round(t, 1, dag.genesisRefs(), 1, 2))

	require.NoError(t, err)
	require.Len(t, proposed, 1)
	assert.Equal(t, types.Round(1), proposed[0].Round)
	assert.Equal(t, []types.Round{1, 2}, rounds)
}
