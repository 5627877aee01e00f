package types

import (
	"errors"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

// BlockSigner signs the blocks proposed by the local authority.
type BlockSigner interface {
	GetPubKey() (crypto.PubKey, error)
	SignBlock(block *Block) error
}

// MockPV implements BlockSigner without any persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey crypto.PrivKey
}

func NewMockPV() MockPV {
	return MockPV{PrivKey: ed25519.GenPrivKey()}
}

func (pv MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv MockPV) SignBlock(block *Block) error {
	sig, err := pv.PrivKey.Sign(block.SignBytes())
	if err != nil {
		return err
	}
	block.Signature = sig
	return nil
}

// ErroringMockPV fails every signing request.
type ErroringMockPV struct {
	MockPV
}

var ErrErroringMockPVSign = errors.New("erroringMockPV always returns an error")

func NewErroringMockPV() *ErroringMockPV {
	return &ErroringMockPV{MockPV{PrivKey: ed25519.GenPrivKey()}}
}

func (pv *ErroringMockPV) SignBlock(*Block) error {
	return ErrErroringMockPVSign
}
