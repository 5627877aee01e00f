package node

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	cfg "dagbft/config"
	"dagbft/consensus"
	"dagbft/types"

	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

// nodeLogger 给每个验证者的日志加上不同的颜色
func nodeLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if idx, ok := keyvals[i+1].(int); ok && keyvals[i] == "node" {
				return term.FgBgColor{Fg: term.Color(uint8(idx + 1))}
			}
		}
		return term.FgBgColor{}
	})
}

// newTestCluster 在同一个进程里启动n个验证者，区块通过Broadcaster互相转发
func newTestCluster(t *testing.T, n int) []*Node {
	committee, signers := types.RandCommittee(n)
	logger := nodeLogger()
	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		config := cfg.ResetTestRoot(fmt.Sprintf("node_test_%d", i))
		config.Moniker = fmt.Sprintf("node%d", i)
		config.RPC.ListenAddress = ""
		t.Cleanup(func() { os.RemoveAll(config.RootDir) })

		node, err := NewNode(config, signers[i], committee, logger.With("node", i))
		require.NoError(t, err)
		require.Equal(t, types.AuthorityIndex(i), node.Authority())
		nodes[i] = node
	}
	ConnectNodes(nodes...)
	return nodes
}

func TestNodeStartStop(t *testing.T) {
	nodes := newTestCluster(t, 1)
	n := nodes[0]
	require.NoError(t, n.Start())

	// a single authority is always its own leader
	require.Eventually(t, func() bool { return n.RoundSignal().Round() >= 5 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, n.MetricSet().HasMetrics(consensus.LeaderTimeoutMetricLabel))

	require.NoError(t, n.Stop())
	assert.True(t, n.RoundSignal().IsClosed())
	select {
	case <-n.LeaderTimeout().Done():
	default:
		t.Fatal("leader timeout task still running")
	}

	_, err := n.Dispatch().GetMissingBlocks(testCtx())
	assert.Equal(t, consensus.ErrCoreShuttingDown, err)
}

func TestNodeNotInCommittee(t *testing.T) {
	committee, _ := types.RandCommittee(4)
	config := cfg.ResetTestRoot("node_test_outsider")
	defer os.RemoveAll(config.RootDir)

	_, err := NewNode(config, types.NewMockPV(), committee, log.TestingLogger())
	assert.Error(t, err)
}

func TestClusterMakesProgress(t *testing.T) {
	nodes := newTestCluster(t, 4)
	for _, n := range nodes {
		require.NoError(t, n.Start())
	}
	defer func() {
		for _, n := range nodes {
			if n.IsRunning() {
				require.NoError(t, n.Stop())
			}
		}
	}()

	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool { return n.RoundSignal().Round() >= 10 }, 10*time.Second, 10*time.Millisecond,
			"node %d stuck at round %d", n.Authority(), n.RoundSignal().Round())
	}
}

// 停掉一个验证者之后，它作为leader的round依靠leader timeout继续推进
func TestClusterSurvivesCrashedLeader(t *testing.T) {
	nodes := newTestCluster(t, 4)
	for _, n := range nodes {
		require.NoError(t, n.Start())
	}
	defer func() {
		for _, n := range nodes {
			if n.IsRunning() {
				require.NoError(t, n.Stop())
			}
		}
	}()

	require.Eventually(t, func() bool { return nodes[0].RoundSignal().Round() >= 3 }, 10*time.Second, 10*time.Millisecond)

	crashed := nodes[1]
	require.NoError(t, crashed.Stop())
	from := nodes[0].RoundSignal().Round()

	alive := []*Node{nodes[0], nodes[2], nodes[3]}
	for _, n := range alive {
		n := n
		require.Eventually(t, func() bool { return n.RoundSignal().Round() >= from+8 }, 10*time.Second, 10*time.Millisecond,
			"node %d stuck at round %d", n.Authority(), n.RoundSignal().Round())
	}

	timeouts := int64(0)
	for _, n := range alive {
		timeouts += n.LeaderTimeout().Status().Timeouts
	}
	assert.True(t, timeouts > 0, "rounds led by the crashed node need the leader timeout")
}

func testCtx() context.Context {
	return context.Background()
}
