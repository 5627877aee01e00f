package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// BlockDigest is the hash of a block including its signature.
type BlockDigest [tmhash.Size]byte

func (d BlockDigest) IsZero() bool {
	return d == BlockDigest{}
}

func (d BlockDigest) String() string {
	return fmt.Sprintf("%X", d[:])
}

func (d BlockDigest) MarshalJSON() ([]byte, error) {
	return tmbytes.HexBytes(d[:]).MarshalJSON()
}

func (d *BlockDigest) UnmarshalJSON(data []byte) error {
	var hb tmbytes.HexBytes
	if err := hb.UnmarshalJSON(data); err != nil {
		return err
	}
	if len(hb) != len(d) {
		return fmt.Errorf("block digest must be %d bytes, got %d", len(d), len(hb))
	}
	copy(d[:], hb)
	return nil
}

// BlockRef uniquely identifies a block in the DAG.
type BlockRef struct {
	Round  Round          `json:"round"`
	Author AuthorityIndex `json:"author"`
	Digest BlockDigest    `json:"digest"`
}

// Less orders refs by (round, author, digest).
func (r BlockRef) Less(o BlockRef) bool {
	if r.Round != o.Round {
		return r.Round < o.Round
	}
	if r.Author != o.Author {
		return r.Author < o.Author
	}
	for i := range r.Digest {
		if r.Digest[i] != o.Digest[i] {
			return r.Digest[i] < o.Digest[i]
		}
	}
	return false
}

func (r BlockRef) Bytes() []byte {
	bz := make([]byte, 0, 8+4+len(r.Digest))
	bz = append(bz, r.Round.Bytes()...)
	bz = append(bz, r.Author.Bytes()...)
	return append(bz, r.Digest[:]...)
}

func (r BlockRef) String() string {
	return fmt.Sprintf("B%d(%d,%X)", r.Round, r.Author, r.Digest[:4])
}

// SortBlockRefs sorts refs in place and returns them.
func SortBlockRefs(refs []BlockRef) []BlockRef {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

//-----------------------------------------------------------------------------

// Block is a DAG vertex: the authority's proposal for one round, pointing to
// blocks of earlier rounds.
type Block struct {
	Round     Round            `json:"round"`
	Author    AuthorityIndex   `json:"author"`
	Timestamp int64            `json:"timestamp_ms"` // 提案时间，毫秒
	Ancestors []BlockRef       `json:"ancestors"`
	Txs       Txs              `json:"txs"`
	Signature tmbytes.HexBytes `json:"signature"` // sign {round}{author}{timestamp}{ancestors}{txs}
}

// ValidateBasic checks the block is well formed. It does not verify the
// signature.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if b.Round == GenesisRound {
		if len(b.Ancestors) != 0 {
			return errors.New("genesis block has ancestors")
		}
		return nil
	}
	if len(b.Ancestors) == 0 {
		return errors.New("block has no ancestors")
	}
	for _, a := range b.Ancestors {
		if a.Round >= b.Round {
			return fmt.Errorf("ancestor %v is not below block round %d", a, b.Round)
		}
	}
	if len(b.Signature) == 0 {
		return errors.New("block has no signature")
	}
	return nil
}

// SignBytes is the merkle root of the header fields and the tx root.
func (b *Block) SignBytes() []byte {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(b.Timestamp))

	ancestors := make([][]byte, len(b.Ancestors))
	for i, a := range b.Ancestors {
		ancestors[i] = a.Bytes()
	}

	return merkle.HashFromByteSlices([][]byte{
		b.Round.Bytes(),
		b.Author.Bytes(),
		ts,
		merkle.HashFromByteSlices(ancestors),
		b.Txs.Hash(),
	})
}

func (b *Block) Digest() BlockDigest {
	var d BlockDigest
	copy(d[:], tmhash.Sum(append(b.SignBytes(), b.Signature...)))
	return d
}

func (b *Block) Ref() BlockRef {
	return BlockRef{Round: b.Round, Author: b.Author, Digest: b.Digest()}
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{%d/%d ancestors:%d txs:%d}", b.Round, b.Author, len(b.Ancestors), len(b.Txs))
}

//-----------------------------------------------------------------------------

// VerifiedBlock is a block whose signature and structure were checked. Its
// reference is computed once.
type VerifiedBlock struct {
	*Block
	ref BlockRef
}

// NewVerifiedBlock wraps a block that must not be modified afterwards.
func NewVerifiedBlock(b *Block) *VerifiedBlock {
	return &VerifiedBlock{Block: b, ref: b.Ref()}
}

func (vb *VerifiedBlock) Reference() BlockRef {
	return vb.ref
}

func (vb *VerifiedBlock) String() string {
	return vb.ref.String()
}
