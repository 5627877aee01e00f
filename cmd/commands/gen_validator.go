package commands

import (
	"fmt"

	"dagbft/privval"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// GenValidatorCmd生成共识验证者的公私钥对
// 指定--seed时，密钥由(seed, idx)确定，和gen-committee生成的委员会一致
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Args:    cobra.ArbitraryArgs,
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

func init() {
	GenValidatorCmd.Flags().Int64Var(&seed, "seed", 0, "随机数种子，为0时随机生成私钥")
	GenValidatorCmd.Flags().Int64Var(&idx, "idx", 0, "验证者在委员会中的编号，从0开始")
}

func genValidator(cmd *cobra.Command, args []string) error {
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return nil
	}

	pv := newFilePV(privValKeyFile)
	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		return err
	}
	pv.Save()

	fmt.Printf(`%v
`, string(jsbz))
	return nil
}

func newFilePV(keyFile string) *privval.FilePV {
	if seed == 0 {
		return privval.GenFilePV(keyFile)
	}
	return privval.GenFilePVWithSeedAndIdx(keyFile, seed, idx)
}
