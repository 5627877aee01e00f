package types

// GenesisBlocks returns the round 0 block of every authority. They are not
// signed and are identical on every node.
func GenesisBlocks(c *Committee) []*VerifiedBlock {
	blocks := make([]*VerifiedBlock, 0, c.Size())
	c.Iterate(func(idx AuthorityIndex, _ *Authority) bool {
		blocks = append(blocks, NewVerifiedBlock(&Block{
			Round:  GenesisRound,
			Author: idx,
			Txs:    Txs{},
		}))
		return false
	})
	return blocks
}

// MakeBlock returns an unsigned block for round with the given ancestors.
func MakeBlock(round Round, author AuthorityIndex, timestampMs int64, ancestors []BlockRef, txs Txs) *Block {
	if txs == nil {
		txs = Txs{}
	}
	return &Block{
		Round:     round,
		Author:    author,
		Timestamp: timestampMs,
		Ancestors: ancestors,
		Txs:       txs,
	}
}
