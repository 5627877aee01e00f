package consensus

import (
	cstypes "dagbft/consensus/types"
	"dagbft/types"
)

// ThresholdClock derives the local round from accepted blocks. Round r moves
// to r+1 once blocks of round r from a quorum of authorities are accepted.
// A block of a higher round moves the clock straight to that round, since
// its author must have seen a quorum of the round before.
type ThresholdClock struct {
	committee  *types.Committee
	round      types.Round
	aggregator *cstypes.RoundAggregator
}

func NewThresholdClock(committee *types.Committee, round types.Round) *ThresholdClock {
	return &ThresholdClock{
		committee:  committee,
		round:      round,
		aggregator: cstypes.MakeRoundAggregator(),
	}
}

// AddBlock returns true when the clock advanced.
func (tc *ThresholdClock) AddBlock(ref types.BlockRef) bool {
	if ref.Round < tc.round {
		return false
	}

	reached, err := tc.aggregator.Add(ref.Round, ref.Author, tc.committee.QuorumThreshold())
	if err != nil {
		// equivocating author, counted once
		return false
	}

	prev := tc.round
	if reached {
		tc.round = ref.Round.Next()
	} else if ref.Round > tc.round {
		tc.round = ref.Round
	}
	if tc.round == prev {
		return false
	}
	tc.aggregator.Prune(tc.round)
	return true
}

func (tc *ThresholdClock) Round() types.Round {
	return tc.round
}
