package node

import (
	"errors"
	"fmt"
	"strings"

	cfg "dagbft/config"
	"dagbft/rpc"
	"dagbft/types"
)

// Version of the dagbft node software.
const Version = "0.1.0"

func makeNodeInfo(config *cfg.Config, index types.AuthorityIndex, auth *types.Authority) (rpc.NodeInfo, error) {
	info := rpc.NodeInfo{
		Moniker:    config.Moniker,
		Authority:  index,
		Address:    auth.Address,
		RPCAddress: config.RPC.ListenAddress,
		Version:    Version,
	}
	return info, validateNodeInfo(info)
}

func validateNodeInfo(info rpc.NodeInfo) error {
	if len(info.Address) == 0 {
		return errors.New("node address is empty")
	}
	if strings.TrimSpace(info.Moniker) == "" {
		return errors.New("moniker is empty")
	}
	if len(info.Version) > 0 && (strings.Trim(info.Version, "\t ") == "") {
		return fmt.Errorf("info.Version must be valid ASCII text without tabs, but got %v", info.Version)
	}
	return nil
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
