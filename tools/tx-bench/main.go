package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"
)

var (
	duration    int
	rate        int
	connections int
	size        int
	verbose     bool
	method      string
)

var logger = log.NewNopLogger()

var rootCmd = &cobra.Command{
	Use:   "tx-bench [endpoints]",
	Short: "Send transactions to dagbft nodes over websocket",
	Long: `Send transactions to dagbft nodes over websocket.

Examples:
	tx-bench localhost:26657
	tx-bench -T 30 -r 500 -c 2 localhost:26657,localhost:26658`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.Flags().IntVarP(&duration, "time", "T", 10, "Exit after the specified amount of time in seconds")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 100, "Txs per second to send in a connection")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", 1, "Connections to open to each endpoint")
	rootCmd.Flags().IntVarP(&size, "size", "s", 64, "The size of a transaction in bytes")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.Flags().StringVar(&method, "broadcast-tx-method", "broadcast_tx", "RPC method used to send txs")
}

func runBench(cmd *cobra.Command, args []string) error {
	if verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}
	if rate <= 0 || connections <= 0 || duration <= 0 {
		return fmt.Errorf("rate, connections and time must be positive")
	}

	endpoints := strings.Split(args[0], ",")
	transacters := make([]*transacter, 0, len(endpoints))
	for _, e := range endpoints {
		t := newTransacter(e, connections, rate, size, method)
		t.SetLogger(logger)
		if err := t.Start(); err != nil {
			return err
		}
		transacters = append(transacters, t)
	}

	stop := func() {
		for _, t := range transacters {
			t.Stop()
		}
	}
	// Stop upon receiving SIGTERM or CTRL-C.
	tmos.TrapSignal(logger, stop)

	start := time.Now()
	<-time.After(time.Duration(duration) * time.Second)
	stop()

	var sent int64
	for _, t := range transacters {
		sent += t.Sent()
	}
	took := time.Since(start)
	fmt.Printf("sent %d txs in %v (%.1f tx/s)\n", sent, took, float64(sent)/took.Seconds())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
