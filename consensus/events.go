package consensus

import (
	"dagbft/types"
)

// 通过EventSwitch对外广播的事件
const (
	// EventNewBlock carries the *types.VerifiedBlock the core just proposed.
	EventNewBlock = "NewBlock"
	// EventNewRound carries EventDataNewRound after the threshold clock moved.
	EventNewRound = "NewRound"
)

type EventDataNewRound struct {
	Round types.Round `json:"round"`
}
