package types

import (
	"crypto/sha256"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

const TxKeySize = sha256.Size

// Tx is an opaque transaction carried by blocks.
type Tx []byte

func (tx Tx) Hash() []byte {
	return tmhash.Sum(tx)
}

// Key is the fixed length array hash used as the key in maps.
func (tx Tx) Key() [TxKeySize]byte {
	return sha256.Sum256(tx)
}

func (tx Tx) ComputeSize() int64 {
	return int64(len(tx))
}

type Txs []Tx

func (txs Txs) ComputeSize() int64 {
	var dataSize int64
	for _, tx := range txs {
		dataSize += tx.ComputeSize()
	}
	return dataSize
}

// Hash returns the merkle root of the transaction hashes.
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(txBzs)
}
