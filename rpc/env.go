package rpc

import (
	"context"

	"dagbft/consensus"
	"dagbft/libs/metric"
	"dagbft/mempool"
	"dagbft/types"

	"github.com/tendermint/tendermint/libs/log"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

// Consensus is the part of the core thread the RPC handlers use.
type Consensus interface {
	consensus.ConsensusDispatch
	Status(ctx context.Context) (consensus.CoreStatus, error)
	BlocksAtRound(ctx context.Context, round types.Round) ([]*types.VerifiedBlock, error)
}

// Environment contains objects and interfaces used by the RPC handlers.
type Environment struct {
	Consensus     Consensus
	RoundSignal   *consensus.RoundSignal
	LeaderTimeout func() consensus.LeaderTimeoutStatus
	Mempool       mempool.Mempool
	Committee     *types.Committee
	NodeInfo      NodeInfo

	MetricSet *metric.MetricSet
	Logger    log.Logger
}

// NodeInfo describes the local authority.
type NodeInfo struct {
	Moniker    string               `json:"moniker"`
	Authority  types.AuthorityIndex `json:"authority"`
	Address    types.Address        `json:"address"`
	RPCAddress string               `json:"rpc_address"`
	Version    string               `json:"version"`
}
