package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"dagbft/store"
	"dagbft/types"
)

var inspectFrom int64

func init() {
	InspectDAGCmd.Flags().Int64Var(&inspectFrom, "from", 0, "first round to print")
}

// InspectDAGCmd prints the blocks persisted by a stopped node, one line per
// round.
var InspectDAGCmd = &cobra.Command{
	Use:     "inspect-dag",
	Aliases: []string{"inspect_dag"},
	Short:   "Print the blocks in the local block store",
	PreRun:  deprecateSnakeCase,
	RunE:    inspectDAG,
}

func inspectDAG(cmd *cobra.Command, args []string) error {
	if inspectFrom < 0 {
		return fmt.Errorf("negative round %d", inspectFrom)
	}
	bs, err := store.NewBlockStore("dag", config.DBBackend, config.DBDir(), logger)
	if err != nil {
		return err
	}
	defer bs.Close() // nolint: errcheck

	blocks, err := bs.ScanBlocks(types.Round(inspectFrom))
	if err != nil {
		return err
	}
	last, err := bs.LastRound()
	if err != nil {
		return err
	}

	byRound := make(map[types.Round][]*types.VerifiedBlock)
	for _, b := range blocks {
		byRound[b.Round] = append(byRound[b.Round], b)
	}
	for r := types.Round(inspectFrom); r <= last; r++ {
		fmt.Printf("round %d: %d blocks\n", r, len(byRound[r]))
		for _, b := range byRound[r] {
			fmt.Printf("  %v ancestors=%d txs=%d\n", b.Reference(), len(b.Ancestors), len(b.Txs))
		}
	}
	return nil
}
