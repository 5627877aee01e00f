package commands

import (
	"github.com/spf13/cobra"

	cfg "dagbft/config"
	"dagbft/privval"
	"dagbft/types"

	tmos "github.com/tendermint/tendermint/libs/os"
)

// InitFilesCmd initialises a fresh dagbft node. Without a committee file
// it writes a committee with this node as the only authority.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dagbft",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().Int64Var(&seed, "seed", 0, "随机数种子，为0时随机生成私钥")
	InitFilesCmd.Flags().Int64Var(&idx, "idx", 0, "验证者在委员会中的编号，从0开始")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// private validator
	privValKeyFile := config.PrivValidatorKeyFile()

	var pv *privval.FilePV
	if tmos.FileExists(privValKeyFile) {
		pv = privval.LoadFilePV(privValKeyFile)
		logger.Info("Found private validator", "keyFile", privValKeyFile)
	} else {
		pv = newFilePV(privValKeyFile)
		pv.Save()
		logger.Info("Generated private validator", "keyFile", privValKeyFile)
	}

	// committee file
	committeeFile := config.CommitteeFile()
	if tmos.FileExists(committeeFile) {
		logger.Info("Found committee file", "path", committeeFile)
	} else {
		pubKey, err := pv.GetPubKey()
		if err != nil {
			return err
		}
		committee := types.NewCommittee([]*types.Authority{types.NewAuthority(config.Moniker, pubKey)})
		if err := committee.SaveAs(committeeFile); err != nil {
			return err
		}
		logger.Info("Generated committee file", "path", committeeFile)
	}

	configFile := config.ConfigFile()
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
		return nil
	}
	if err := cfg.WriteConfigFile(configFile, config); err != nil {
		return err
	}
	logger.Info("Generated config file", "path", configFile)
	return nil
}
