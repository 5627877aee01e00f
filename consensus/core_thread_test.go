package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoreThread(t *testing.T, dag *testDAG, own types.AuthorityIndex) *CoreThread {
	core := dag.newCore(t, own, store.NewMemBlockStore(), clock.NewMock())
	ct := NewCoreThread(core, 4)
	ct.SetLogger(getTestLogWithDebug())
	return ct
}

func TestCoreThreadNotStarted(t *testing.T) {
	ct := newTestCoreThread(t, newTestDAG(4), 0)

	_, err := ct.AddBlocks(testCtx(), nil)
	assert.Equal(t, ErrCoreShuttingDown, err)
	assert.Equal(t, ErrCoreShuttingDown, ct.ForceNewBlock(testCtx(), 1))
	_, err = ct.GetMissingBlocks(testCtx())
	assert.Equal(t, ErrCoreShuttingDown, err)

	// Wait on a thread that never started returns right away
	ct.Wait()
}

func TestCoreThreadDispatch(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	dag := newTestDAG(4)
	ct := newTestCoreThread(t, dag, 0)
	require.NoError(t, ct.Start())

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)
	round2 := dag.block(t, 2, 1, refsOf(round1))

	missing, err := ct.AddBlocks(testCtx(), []*types.VerifiedBlock{round2})
	require.NoError(t, err)
	assert.Len(t, missing, 3)

	missing, err = ct.GetMissingBlocks(testCtx())
	require.NoError(t, err)
	assert.Equal(t, types.SortBlockRefs(refsOf(round1)), missing)

	_, err = ct.AddBlocks(testCtx(), round1)
	require.NoError(t, err)
	missing, err = ct.GetMissingBlocks(testCtx())
	require.NoError(t, err)
	assert.Empty(t, missing)

	blocks, err := ct.BlocksAtRound(testCtx(), 2)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)

	status, err := ct.Status(testCtx())
	require.NoError(t, err)
	assert.Equal(t, types.Round(2), status.Round)
	assert.Equal(t, 4+4+1, status.AcceptedBlocks, "genesis, four round 1 blocks and round 2")

	require.NoError(t, ct.Stop())
	ct.Wait()
	ct.Core().Close()

	_, err = ct.GetMissingBlocks(testCtx())
	assert.True(t, IsTerminalDispatchError(err))
	assert.Equal(t, ErrCoreShuttingDown, ct.ForceNewBlock(testCtx(), 3))
}

// 多个goroutine并发调用，core只在一个goroutine上执行
func TestCoreThreadConcurrentCallers(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	dag := newTestDAG(4)
	ct := newTestCoreThread(t, dag, 0)
	ct.SetLogger(getTestLog())
	require.NoError(t, ct.Start())
	defer func() {
		require.NoError(t, ct.Stop())
		ct.Wait()
	}()

	round1 := dag.round(t, 1, dag.genesisRefs(), 1, 2, 3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ct.AddBlocks(testCtx(), round1[i%3:i%3+1])
			assert.NoError(t, err)
			assert.NoError(t, ct.ForceNewBlock(testCtx(), 1))
		}(i)
	}
	wg.Wait()

	status, err := ct.Status(testCtx())
	require.NoError(t, err)
	assert.Equal(t, types.Round(2), status.Round)
	assert.Equal(t, types.Round(1), status.LastProposedRound)
}

func TestCoreThreadContextCanceled(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	ct := newTestCoreThread(t, newTestDAG(4), 0)
	require.NoError(t, ct.Start())
	defer func() {
		require.NoError(t, ct.Stop())
		ct.Wait()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// either the command made it in or the canceled context won
	err := ct.ForceNewBlock(ctx, 1)
	if err != nil {
		assert.Equal(t, context.Canceled, err)
		assert.True(t, IsTerminalDispatchError(err))
	}
}

// blockCoreThread 让core thread执行一个阻塞的命令，返回后命令已经开始执行
func blockCoreThread(t *testing.T, ct *CoreThread) (release func()) {
	started, unblock := make(chan struct{}), make(chan struct{})
	go func() {
		assert.NoError(t, ct.send(testCtx(), "slow", func(*Core) {
			close(started)
			<-unblock
		}))
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("slow command did not start")
	}
	return func() { close(unblock) }
}

// 排队中被取消的命令不会再执行
func TestCoreThreadSkipsCanceledCommand(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	ct := newTestCoreThread(t, newTestDAG(4), 0)
	require.NoError(t, ct.Start())
	defer func() {
		require.NoError(t, ct.Stop())
		ct.Wait()
	}()

	release := blockCoreThread(t, ct)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ct.ForceNewBlock(ctx, 1)
	assert.Equal(t, context.DeadlineExceeded, err)

	release()
	status, err := ct.Status(testCtx())
	require.NoError(t, err)
	assert.Equal(t, types.GenesisRound, status.LastProposedRound)
	assert.EqualValues(t, 0, ct.Core().MetricItem().ForcedBlocks)
}

// 命令开始执行之后取消ctx，send等待它执行完
func TestCoreThreadWaitsForRunningCommand(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	ct := newTestCoreThread(t, newTestDAG(4), 0)
	require.NoError(t, ct.Start())
	defer func() {
		require.NoError(t, ct.Stop())
		ct.Wait()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	err := ct.send(ctx, "cancel_while_running", func(*Core) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		ran = true
	})
	assert.NoError(t, err)
	assert.True(t, ran)
}
