package commands

import (
	"fmt"

	"dagbft/privval"
	"dagbft/types"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// GenCommitteeCmd 根据种子生成整个委员会的公钥文件，
// 每个验证者再用相同的种子和自己的编号执行gen-validator
var GenCommitteeCmd = &cobra.Command{
	Use:     "gen-committee",
	Aliases: []string{"gen_committee"},
	Short:   "Generate the committee file of a test cluster",
	PreRun:  deprecateSnakeCase,
	RunE:    genCommitteeFile,
}

func init() {
	GenCommitteeCmd.Flags().Int64Var(&committeeSeed, "seed", 1, "用来生成集群密钥的种子")
	GenCommitteeCmd.Flags().IntVar(&committeeSize, "count", 4, "委员会中验证者的数量")
}

func genCommitteeFile(cmd *cobra.Command, args []string) error {
	committeeFile := config.CommitteeFile()
	if tmos.FileExists(committeeFile) {
		logger.Info("Found committee file", "path", committeeFile)
		return nil
	}
	if committeeSeed == 0 {
		return errors.New("seed must not be 0")
	}

	committee, err := seededCommittee(committeeSeed, committeeSize)
	if err != nil {
		return err
	}
	if err := committee.SaveAs(committeeFile); err != nil {
		return err
	}
	logger.Info("Generated committee file", "path", committeeFile, "size", committee.Size())
	return nil
}

// seededCommittee derives the public keys of count authorities from seed.
func seededCommittee(seed int64, count int) (*types.Committee, error) {
	if count <= 0 {
		return nil, errors.Errorf("committee size must be positive, got %d", count)
	}
	auths := make([]*types.Authority, count)
	for i := 0; i < count; i++ {
		pv := privval.GenFilePVWithSeedAndIdx("", seed, int64(i))
		pub, err := pv.GetPubKey()
		if err != nil {
			return nil, errors.Wrapf(err, "生成第%v个验证者的公钥失败", i)
		}
		auths[i] = types.NewAuthority(fmt.Sprintf("authority-%d", i), pub)
	}
	committee := types.NewCommittee(auths)
	return committee, committee.ValidateBasic()
}
