package rpc

import (
	"context"
	"time"

	"dagbft/types"

	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const maxWaitRoundTimeout = 10 * time.Second

type ResultMissingBlocks struct {
	Refs []types.BlockRef `json:"refs"`
}

type ResultBlock struct {
	Ref       types.BlockRef   `json:"ref"`
	Timestamp int64            `json:"timestamp_ms"`
	Ancestors []types.BlockRef `json:"ancestors"`
	TxNum     int              `json:"tx_num"`
}

type ResultDAGRound struct {
	Round  types.Round          `json:"round"`
	Leader types.AuthorityIndex `json:"leader"`
	Blocks []ResultBlock        `json:"blocks"`
}

type ResultRound struct {
	Round types.Round `json:"round"`
}

type ResultCommittee struct {
	Committee *types.Committee `json:"committee"`
	Quorum    int              `json:"quorum"`
}

// MissingBlocks returns the blocks referenced in the local DAG but not
// received yet.
func MissingBlocks(ctx *rpctypes.Context) (*ResultMissingBlocks, error) {
	refs, err := env.Consensus.GetMissingBlocks(ctx.Context())
	if err != nil {
		return nil, err
	}
	return &ResultMissingBlocks{Refs: refs}, nil
}

// DAGRound returns the accepted blocks of round.
func DAGRound(ctx *rpctypes.Context, round int64) (*ResultDAGRound, error) {
	if round < 0 {
		return nil, errors.Errorf("round must be non negative, got %d", round)
	}
	r := types.Round(round)
	blocks, err := env.Consensus.BlocksAtRound(ctx.Context(), r)
	if err != nil {
		return nil, err
	}

	result := &ResultDAGRound{
		Round:  r,
		Leader: env.Committee.Leader(r),
		Blocks: make([]ResultBlock, 0, len(blocks)),
	}
	for _, b := range blocks {
		result.Blocks = append(result.Blocks, ResultBlock{
			Ref:       b.Reference(),
			Timestamp: b.Timestamp,
			Ancestors: b.Ancestors,
			TxNum:     len(b.Txs),
		})
	}
	return result, nil
}

// WaitRound blocks until the threshold clock is past round or the timeout
// (at most 10s) expires, and returns the current round.
func WaitRound(ctx *rpctypes.Context, round int64, timeoutMs int64) (*ResultRound, error) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 || timeout > maxWaitRoundTimeout {
		timeout = maxWaitRoundTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx.Context(), timeout)
	defer cancel()

	sub := env.RoundSignal.Subscribe()
	current := sub.Current()
	for round >= 0 && current <= types.Round(round) {
		var err error
		current, err = sub.WaitForChange(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, err
		}
	}
	return &ResultRound{Round: current}, nil
}

func Committee(ctx *rpctypes.Context) (*ResultCommittee, error) {
	return &ResultCommittee{
		Committee: env.Committee,
		Quorum:    env.Committee.QuorumThreshold(),
	}, nil
}
