package main

import (
	"fmt"
	"os"
	"path/filepath"

	cmd "dagbft/cmd/commands"
	cfg "dagbft/config"
	nm "dagbft/node"

	"github.com/tendermint/tendermint/libs/cli"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// Users wishing to:
	//	* Use an external signer for their validators
	//	* Load the committee from another source
	//	* Provide their own DB implementation
	// can copy this file and use something other than the
	// DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(
		cmd.GenValidatorCmd,
		cmd.GenCommitteeCmd,
		cmd.ShowValidatorCmd,
		cmd.InspectDAGCmd,
		cmd.LocalnetCmd,
		cmd.VersionCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)
	cmd := cli.PrepareBaseCmd(rootCmd, "DAGBFT", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDir)))

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
