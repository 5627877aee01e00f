package types

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedBlock(t *testing.T, pv BlockSigner, round Round, author AuthorityIndex, ancestors []BlockRef) *Block {
	b := MakeBlock(round, author, 1000, ancestors, Txs{Tx("tx1"), Tx("tx2")})
	require.NoError(t, pv.SignBlock(b))
	return b
}

func TestBlockDigestDependsOnSignature(t *testing.T) {
	c, pvs := RandCommittee(4)
	genesis := GenesisBlocks(c)

	b := newSignedBlock(t, pvs[0], 1, 0, []BlockRef{genesis[0].Reference(), genesis[1].Reference()})
	d1 := b.Digest()

	b.Signature = append([]byte{}, b.Signature...)
	b.Signature[0] ^= 0xFF
	assert.NotEqual(t, d1, b.Digest(), "digest should cover the signature")
	assert.False(t, d1.IsZero())
}

func TestBlockValidateBasic(t *testing.T) {
	c, pvs := RandCommittee(4)
	genesis := GenesisBlocks(c)

	for _, g := range genesis {
		assert.NoError(t, g.ValidateBasic())
	}

	good := newSignedBlock(t, pvs[1], 1, 1, []BlockRef{genesis[0].Reference()})
	assert.NoError(t, good.ValidateBasic())

	noAncestors := newSignedBlock(t, pvs[1], 2, 1, nil)
	assert.Error(t, noAncestors.ValidateBasic())

	sameRound := newSignedBlock(t, pvs[1], 1, 1, []BlockRef{good.Ref()})
	assert.Error(t, sameRound.ValidateBasic())

	unsigned := MakeBlock(1, 1, 0, []BlockRef{genesis[0].Reference()}, nil)
	assert.Error(t, unsigned.ValidateBasic())
}

func TestGenesisBlocksAreDeterministic(t *testing.T) {
	c, _ := RandCommittee(4)

	g1 := GenesisBlocks(c)
	g2 := GenesisBlocks(c)
	require.Len(t, g1, 4)
	for i := range g1 {
		assert.Equal(t, g1[i].Reference(), g2[i].Reference())
		assert.Equal(t, AuthorityIndex(i), g1[i].Author)
		assert.Equal(t, GenesisRound, g1[i].Round)
	}
	assert.NotEqual(t, g1[0].Reference().Digest, g1[1].Reference().Digest)
}

func TestBlockJSONKeepsReference(t *testing.T) {
	c, pvs := RandCommittee(4)
	genesis := GenesisBlocks(c)
	b := newSignedBlock(t, pvs[2], 1, 2, []BlockRef{genesis[0].Reference(), genesis[2].Reference()})

	bz, err := jsoniter.Marshal(b)
	require.NoError(t, err)

	decoded := new(Block)
	require.NoError(t, jsoniter.Unmarshal(bz, decoded))
	assert.Equal(t, b.Ref(), decoded.Ref())
}

func TestSortBlockRefs(t *testing.T) {
	refs := []BlockRef{
		{Round: 2, Author: 0},
		{Round: 1, Author: 3},
		{Round: 1, Author: 1, Digest: BlockDigest{2}},
		{Round: 1, Author: 1, Digest: BlockDigest{1}},
	}
	SortBlockRefs(refs)

	assert.Equal(t, []BlockRef{
		{Round: 1, Author: 1, Digest: BlockDigest{1}},
		{Round: 1, Author: 1, Digest: BlockDigest{2}},
		{Round: 1, Author: 3},
		{Round: 2, Author: 0},
	}, refs)
}
