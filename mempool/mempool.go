package mempool

import (
	"dagbft/types"
)

// UnknownPeerID is the peer ID to use when running CheckTx when there is
// no peer (e.g. RPC)
const UnknownPeerID uint16 = 0

// Mempool holds the transactions waiting to be included in an own block.
// All methods are safe for concurrent use: CheckTx is called from RPC
// handlers while the core thread reaps and updates.
type Mempool interface {
	// CheckTx检验一个新交易是否合法，来决定能否将其加入到mempool中
	CheckTx(types.Tx, TxInfo) error

	// ReapMaxTxs从mempool中取出caller指定数量的交易，交易仍留在mempool中
	// 如果max是负数则表示取出mempool所有的交易
	ReapMaxTxs(max int) types.Txs

	// Update 将round中被区块包含的交易从mempool中删去
	Update(types.Round, types.Txs) error

	// Flush将mempool中的所有交易清空
	Flush()

	// Size返回mempool中的交易条数
	Size() int

	// TxsBytes返回mempool所有交易的byte大小
	TxsBytes() int64
}

//--------------------------------------------------------------------------------

// PreCheckFunc is an optional filter executed before CheckTx and rejects
// transaction if false is returned.
type PreCheckFunc func(types.Tx) error

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal ID of the sender, UnknownPeerID for RPC.
	SenderID uint16
}
