package types

import (
	"errors"

	"dagbft/types"
)

var (
	ErrDuplicateAuthor = errors.New("duplicate author")
)

// RoundAggregator 记录每个round里有哪些authority的区块已经被接受
type RoundAggregator struct {
	rounds map[types.Round]*StakeAggregator
}

func MakeRoundAggregator() *RoundAggregator {
	return &RoundAggregator{
		rounds: make(map[types.Round]*StakeAggregator),
	}
}

// Add counts author at round and reports whether the round now reached
// threshold.
func (ra *RoundAggregator) Add(round types.Round, author types.AuthorityIndex, threshold int) (bool, error) {
	sa, exist := ra.rounds[round]
	if !exist {
		sa = NewStakeAggregator()
		ra.rounds[round] = sa
	}
	if err := sa.Add(author); err != nil {
		return false, err
	}
	return sa.Reached(threshold), nil
}

// Get returns the aggregator of round, nil if no author was counted.
func (ra *RoundAggregator) Get(round types.Round) *StakeAggregator {
	return ra.rounds[round]
}

// Prune drops every round below round.
func (ra *RoundAggregator) Prune(round types.Round) {
	for r := range ra.rounds {
		if r < round {
			delete(ra.rounds, r)
		}
	}
}

func NewStakeAggregator() *StakeAggregator {
	return &StakeAggregator{
		authors: make(map[types.AuthorityIndex]struct{}),
	}
}

// StakeAggregator counts distinct authorities. All authorities carry the
// same stake.
type StakeAggregator struct {
	authors map[types.AuthorityIndex]struct{}
}

func (sa *StakeAggregator) Add(author types.AuthorityIndex) error {
	if _, ok := sa.authors[author]; ok {
		return ErrDuplicateAuthor
	}
	sa.authors[author] = struct{}{}
	return nil
}

func (sa *StakeAggregator) Has(author types.AuthorityIndex) bool {
	_, ok := sa.authors[author]
	return ok
}

func (sa *StakeAggregator) Stake() int {
	return len(sa.authors)
}

func (sa *StakeAggregator) Reached(threshold int) bool {
	return sa.Stake() >= threshold
}
