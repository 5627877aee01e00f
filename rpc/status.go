package rpc

import (
	"dagbft/consensus"
	"dagbft/types"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultStatus struct {
	NodeInfo      NodeInfo                      `json:"node_info"`
	SignalRound   types.Round                   `json:"signal_round"`
	Core          consensus.CoreStatus          `json:"core"`
	LeaderTimeout consensus.LeaderTimeoutStatus `json:"leader_timeout"`
	MempoolSize   int                           `json:"mempool_size"`
}

// Status returns the state of the local authority.
func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	core, err := env.Consensus.Status(ctx.Context())
	if err != nil {
		return nil, err
	}
	result := &ResultStatus{
		NodeInfo:    env.NodeInfo,
		SignalRound: env.RoundSignal.Round(),
		Core:        core,
		MempoolSize: env.Mempool.Size(),
	}
	if env.LeaderTimeout != nil {
		result.LeaderTimeout = env.LeaderTimeout()
	}
	return result, nil
}
