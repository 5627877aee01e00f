package types

import (
	"encoding/binary"
	"strconv"
)

// Round is the DAG round ordinal. Every authority proposes at most one block
// per round.
type Round uint64

const (
	GenesisRound = Round(0)
)

func (r Round) Next() Round {
	return r + 1
}

// Prev returns the previous round, GenesisRound has no predecessor.
func (r Round) Prev() Round {
	if r == GenesisRound {
		return GenesisRound
	}
	return r - 1
}

// Bytes returns the big-endian encoding of the round, used by store keys
// and block sign bytes so rounds sort lexicographically.
func (r Round) Bytes() []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(r))
	return bz
}

func (r Round) String() string {
	return strconv.FormatUint(uint64(r), 10)
}
