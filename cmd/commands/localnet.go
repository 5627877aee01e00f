package commands

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	cfg "dagbft/config"
	nm "dagbft/node"
	"dagbft/privval"

	tmos "github.com/tendermint/tendermint/libs/os"
)

var (
	localnetSize      int
	localnetSeed      int64
	localnetCrashed   int
	localnetDBBackend string
)

// LocalnetCmd 在一个进程里运行整个委员会，节点之间直接调用对方的core thread。
// 只有第一个节点开启RPC。
var LocalnetCmd = &cobra.Command{
	Use:   "localnet",
	Short: "Run a committee of validators in one process",
	RunE:  runLocalnet,
}

func init() {
	LocalnetCmd.Flags().IntVar(&localnetSize, "validators", 4, "委员会中验证者的数量")
	LocalnetCmd.Flags().Int64Var(&localnetSeed, "seed", 1, "用来生成集群密钥的种子")
	LocalnetCmd.Flags().IntVar(&localnetCrashed, "crashed", 0, "不启动的验证者数量，用来观察leader timeout")
	LocalnetCmd.Flags().StringVar(&localnetDBBackend, "db_backend", "memdb", "database backend: goleveldb | memdb")
}

func runLocalnet(cmd *cobra.Command, args []string) error {
	if localnetCrashed < 0 || localnetCrashed >= localnetSize {
		return errors.Errorf("crashed validators must be in [0, %d)", localnetSize)
	}
	committee, err := seededCommittee(localnetSeed, localnetSize)
	if err != nil {
		return err
	}

	nodes := make([]*nm.Node, 0, localnetSize)
	for i := 0; i < localnetSize; i++ {
		home := filepath.Join(config.RootDir, fmt.Sprintf("node%d", i))
		cfg.EnsureRoot(home)

		nodeConfig := cfg.DefaultConfig().SetRoot(home)
		nodeConfig.Moniker = fmt.Sprintf("node%d", i)
		nodeConfig.DBBackend = localnetDBBackend
		nodeConfig.Consensus = config.Consensus
		nodeConfig.Instrumentation = config.Instrumentation
		if i > 0 {
			nodeConfig.RPC.ListenAddress = ""
			nodeConfig.Instrumentation = cfg.DefaultInstrumentationConfig()
		} else {
			nodeConfig.RPC = config.RPC
		}
		if err := committee.SaveAs(nodeConfig.CommitteeFile()); err != nil {
			return err
		}

		pv := privval.GenFilePVWithSeedAndIdx(nodeConfig.PrivValidatorKeyFile(), localnetSeed, int64(i))
		pv.Save()

		n, err := nm.NewNode(nodeConfig, pv, committee, logger.With("node", i))
		if err != nil {
			return errors.Wrapf(err, "create node %d", i)
		}
		nodes = append(nodes, n)
	}
	nm.ConnectNodes(nodes...)

	running := nodes[:localnetSize-localnetCrashed]
	for _, n := range running {
		if err := n.Start(); err != nil {
			return errors.Wrapf(err, "start node %d", n.Authority())
		}
	}
	logger.Info("Started localnet", "validators", localnetSize, "running", len(running))

	tmos.TrapSignal(logger, func() {
		for _, n := range running {
			if n.IsRunning() {
				if err := n.Stop(); err != nil {
					logger.Error("unable to stop the node", "node", n.Authority(), "error", err)
				}
			}
		}
	})

	select {}
}
