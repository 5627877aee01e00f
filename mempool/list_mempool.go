package mempool

import (
	"sync"
	"sync/atomic"

	cfg "dagbft/config"
	"dagbft/libs/metric"
	"dagbft/types"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		txs:    clist.New(),
		metric: newMemMetric(),
		logger: log.NewNopLogger(),
	}

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool is an ordered in-memory pool of transactions. Transactions are
// reaped in arrival order and stay in the pool until a block including them
// is accepted.
type ListMempool struct {
	// Atomic integers
	round    uint64 // the last round Update()'d to
	txsBytes int64  // total size of mempool, in bytes

	config *cfg.MempoolConfig

	updateMtx tmsync.RWMutex
	preCheck  PreCheckFunc

	txs    *clist.CList
	txsMap sync.Map // TxKey -> *clist.CElement

	metric *memMetric
	logger log.Logger
}

var _ Mempool = (*ListMempool)(nil)

type ListMempoolOption func(mem *ListMempool)

func WithPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// MetricItem returns the JSON metric of the pool.
func (mem *ListMempool) MetricItem() metric.MetricItem {
	return mem.metric
}

func (mem *ListMempool) CheckTx(tx types.Tx, txinfo TxInfo) error {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	txSize := len(tx)
	if txSize > mem.config.MaxTxBytes {
		mem.metric.MarkRejected()
		return ErrTxTooLarge{mem.config.MaxTxBytes, txSize}
	}

	if err := mem.isFull(txSize); err != nil {
		mem.metric.MarkRejected()
		return err
	}

	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			mem.metric.MarkRejected()
			return ErrPreCheck{err}
		}
	}

	// 先判断tx是否已经在mempool中
	if _, ok := mem.txsMap.Load(tx.Key()); ok {
		return ErrTxInMap
	}

	memTx := &mempoolTx{
		round: atomic.LoadUint64(&mem.round),
		tx:    tx,
	}
	memTx.senders.Store(txinfo.SenderID, struct{}{})
	mem.addTx(memTx)

	mem.logger.Debug("added tx", "tx", tx.Hash(), "sender", txinfo.SenderID, "total", mem.Size())
	return nil
}

func (mem *ListMempool) ReapMaxTxs(max int) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}

	txs := make(types.Txs, 0, minInt(mem.txs.Len(), max))
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		txs = append(txs, memTx.tx)
	}
	return txs
}

// Update removes txs included in a block accepted at round. Unknown txs are
// ignored.
func (mem *ListMempool) Update(round types.Round, txs types.Txs) error {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	if uint64(round) > atomic.LoadUint64(&mem.round) {
		atomic.StoreUint64(&mem.round, uint64(round))
	}

	for _, tx := range txs {
		if e, ok := mem.txsMap.Load(tx.Key()); ok {
			mem.removeTx(tx, e.(*clist.CElement))
		}
	}

	mem.metric.MarkUpdate(round, mem.Size(), mem.TxsBytes())
	return nil
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	atomic.StoreInt64(&mem.txsBytes, 0)

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}

	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})

	mem.metric.MarkSize(0, 0)
}

func (mem *ListMempool) Size() int {
	return mem.txs.Len()
}

func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// TxsFront returns the first transaction in the ordered list for peer
// goroutines to call .NextWait() on.
func (mem *ListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// TxsWaitChan returns a channel to wait on transactions. It will be closed
// once the mempool is not empty.
func (mem *ListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

// addTx 将tx加入到mempool的双向链表；
// 并且更新快速查询表txMap和mempool的tx总大小
func (mem *ListMempool) addTx(memTx *mempoolTx) {
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(memTx.tx.Key(), e)
	atomic.AddInt64(&mem.txsBytes, int64(len(memTx.tx)))
	mem.metric.MarkSize(mem.Size(), mem.TxsBytes())
}

// Called from Update and Flush with updateMtx held.
func (mem *ListMempool) removeTx(tx types.Tx, elem *clist.CElement) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(tx.Key())
	atomic.AddInt64(&mem.txsBytes, int64(-len(tx)))
}

func (mem *ListMempool) isFull(txSize int) error {
	var (
		memSize  = mem.Size()
		txsBytes = mem.TxsBytes()
	)

	if memSize >= mem.config.Size || int64(txSize)+txsBytes > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			memSize, mem.config.Size,
			txsBytes, mem.config.MaxTxsBytes,
		}
	}

	return nil
}

// ------------------------------

type mempoolTx struct {
	round uint64 // round of the last Update when the tx was added

	tx      types.Tx
	senders sync.Map
}

// Round returns the round for this transaction
func (memTx *mempoolTx) Round() types.Round {
	return types.Round(atomic.LoadUint64(&memTx.round))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
