package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	cfg "dagbft/config"
	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func getTestLogWithDebug() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

func getTestLog() log.Logger {
	return log.TestingLogger()
}

// testDAG 持有一个委员会以及所有成员的签名器，用于构造其他节点的区块
type testDAG struct {
	committee *types.Committee
	signers   []types.BlockSigner
}

func newTestDAG(n int) *testDAG {
	committee, signers := types.RandCommittee(n)
	return &testDAG{committee: committee, signers: signers}
}

func (d *testDAG) genesisRefs() []types.BlockRef {
	var refs []types.BlockRef
	for _, b := range types.GenesisBlocks(d.committee) {
		refs = append(refs, b.Reference())
	}
	return refs
}

func (d *testDAG) block(t *testing.T, round types.Round, author types.AuthorityIndex, ancestors []types.BlockRef) *types.VerifiedBlock {
	b := types.MakeBlock(round, author, int64(round)*1000, ancestors, nil)
	require.NoError(t, d.signers[author].SignBlock(b))
	return types.NewVerifiedBlock(b)
}

// round builds one block per author on top of ancestors.
func (d *testDAG) round(t *testing.T, round types.Round, ancestors []types.BlockRef, authors ...types.AuthorityIndex) []*types.VerifiedBlock {
	blocks := make([]*types.VerifiedBlock, 0, len(authors))
	for _, a := range authors {
		blocks = append(blocks, d.block(t, round, a, ancestors))
	}
	return blocks
}

func refsOf(blocks []*types.VerifiedBlock) []types.BlockRef {
	refs := make([]types.BlockRef, 0, len(blocks))
	for _, b := range blocks {
		refs = append(refs, b.Reference())
	}
	return refs
}

func (d *testDAG) newCore(t *testing.T, own types.AuthorityIndex, st store.Store, clk clock.Clock) *Core {
	core, err := NewCore(
		cfg.TestConsensusConfig(),
		d.committee,
		own,
		d.signers[own],
		st,
		WithCoreClock(clk),
		WithCoreLogger(getTestLog()),
	)
	require.NoError(t, err)
	return core
}

func testCtx() context.Context {
	return context.Background()
}

//-----------------------------------------------------------------------------

type forceCall struct {
	round types.Round
	at    time.Time
}

// mockDispatcher records ForceNewBlock calls with the time of the given
// clock.
type mockDispatcher struct {
	mtx   sync.Mutex
	clk   clock.Clock
	calls []forceCall
	err   error
	block bool          // ForceNewBlock阻塞直到ctx结束
	took  time.Duration // 非零时ForceNewBlock把mock clock推进took
}

func newMockDispatcher(clk clock.Clock) *mockDispatcher {
	return &mockDispatcher{clk: clk}
}

func (m *mockDispatcher) setErr(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.err = err
}

func (m *mockDispatcher) Calls() []forceCall {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]forceCall(nil), m.calls...)
}

func (m *mockDispatcher) numCalls() int {
	return len(m.Calls())
}

func (m *mockDispatcher) AddBlocks(context.Context, []*types.VerifiedBlock) ([]types.BlockRef, error) {
	return nil, nil
}

func (m *mockDispatcher) ForceNewBlock(ctx context.Context, round types.Round) error {
	m.mtx.Lock()
	m.calls = append(m.calls, forceCall{round: round, at: m.clk.Now()})
	err, block, took := m.err, m.block, m.took
	m.mtx.Unlock()

	if mock, ok := m.clk.(*clock.Mock); ok && took > 0 {
		mock.Add(took)
	}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockDispatcher) GetMissingBlocks(context.Context) ([]types.BlockRef, error) {
	return nil, nil
}
