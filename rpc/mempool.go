package rpc

import (
	mempl "dagbft/mempool"
	"dagbft/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultBroadcastTx struct {
	Hash tmbytes.HexBytes `json:"hash"`
}

type ResultUnconfirmedTxs struct {
	Count      int   `json:"n_txs"`
	TotalBytes int64 `json:"total_bytes"`
}

// BroadcastTx adds tx to the local mempool. It returns once CheckTx passed,
// the tx is included in a later own block.
func BroadcastTx(ctx *rpctypes.Context, tx types.Tx) (*ResultBroadcastTx, error) {
	if err := env.Mempool.CheckTx(tx, mempl.TxInfo{SenderID: mempl.UnknownPeerID}); err != nil {
		return nil, err
	}
	return &ResultBroadcastTx{Hash: tx.Hash()}, nil
}

func NumUnconfirmedTxs(ctx *rpctypes.Context) (*ResultUnconfirmedTxs, error) {
	return &ResultUnconfirmedTxs{
		Count:      env.Mempool.Size(),
		TotalBytes: env.Mempool.TxsBytes(),
	}, nil
}
