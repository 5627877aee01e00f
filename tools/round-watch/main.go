// round-watch follows the round of a dagbft node through the wait_round RPC
// and prints how many rounds needed the leader timeout.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"dagbft/rpc"
	"dagbft/types"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	rpcclient "github.com/tendermint/tendermint/rpc/jsonrpc/client"
)

var (
	endpoint  string
	rounds    int
	waitLimit time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "round-watch",
	Short: "Follow the round of a dagbft node",
	RunE:  watch,
}

func init() {
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "tcp://127.0.0.1:26657", "RPC address of the node")
	rootCmd.Flags().IntVarP(&rounds, "rounds", "n", 20, "Exit after this many rounds")
	rootCmd.Flags().DurationVar(&waitLimit, "wait", 5*time.Second, "Max time to wait for one round")
}

func watch(cmd *cobra.Command, args []string) error {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).With("module", "round-watch")
	client, err := rpcclient.New(endpoint)
	if err != nil {
		return err
	}
	ctx := context.Background()

	first := new(rpc.ResultStatus)
	if _, err := client.Call(ctx, "status", map[string]interface{}{}, first); err != nil {
		return err
	}
	logger.Info("connected", "moniker", first.NodeInfo.Moniker, "authority", first.NodeInfo.Authority,
		"round", first.SignalRound)

	round := first.SignalRound
	for i := 0; i < rounds; i++ {
		start := time.Now()
		res := new(rpc.ResultRound)
		params := map[string]interface{}{
			"round":      int64(round),
			"timeout_ms": waitLimit.Milliseconds(),
		}
		if _, err := client.Call(ctx, "wait_round", params, res); err != nil {
			return err
		}
		if res.Round <= round {
			logger.Error("no new round", "round", round, "waited", time.Since(start))
			continue
		}
		logger.Info("new round", "round", res.Round, "took", time.Since(start), "skipped", skipped(round, res.Round))
		round = res.Round
	}

	last := new(rpc.ResultStatus)
	if _, err := client.Call(ctx, "status", map[string]interface{}{}, last); err != nil {
		return err
	}
	fmt.Printf("rounds %d -> %d, leader timeouts %d, dispatch errors %d\n",
		first.SignalRound, last.SignalRound,
		last.LeaderTimeout.Timeouts-first.LeaderTimeout.Timeouts,
		last.LeaderTimeout.DispatchErrors-first.LeaderTimeout.DispatchErrors)
	return nil
}

func skipped(from, to types.Round) uint64 {
	return uint64(to - from - 1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
