package mempool

import (
	"sync"

	"dagbft/types"

	jsoniter "github.com/json-iterator/go"
)

// MetricLabel is the label of the mempool item in the metric set.
const MetricLabel = "mempool"

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx             sync.RWMutex
	TxsNum          int         `json:"txs_num"`           // mempool中所有的交易总数
	TxsBytes        int64       `json:"txs_bytes"`         // 目前mempool所有的交易的大小
	RejectedTxsNum  int64       `json:"rejected_txs_num"`  // 被拒绝的交易总数
	LastUpdateRound types.Round `json:"last_update_round"` // 最后一次Update的round
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkSize(txsNum int, txsBytes int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TxsNum = txsNum
	mm.TxsBytes = txsBytes
}

func (mm *memMetric) MarkUpdate(round types.Round, txsNum int, txsBytes int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	if round > mm.LastUpdateRound {
		mm.LastUpdateRound = round
	}
	mm.TxsNum = txsNum
	mm.TxsBytes = txsBytes
}

func (mm *memMetric) MarkRejected() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.RejectedTxsNum++
}
