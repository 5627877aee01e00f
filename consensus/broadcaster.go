package consensus

import (
	"context"

	"dagbft/store"
	"dagbft/types"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/service"
)

const broadcasterSubscriber = "consensus-broadcaster"

// Broadcaster forwards every block the local core proposes to the
// ConsensusDispatch of other in-process authorities. When a peer reports
// missing ancestors they are read from the local store and sent as well.
type Broadcaster struct {
	service.BaseService

	evsw  events.EventSwitch
	store store.Store
	peers *cmap.CMap // peer id -> ConsensusDispatch

	queue  chan *types.VerifiedBlock
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBroadcaster(evsw events.EventSwitch, st store.Store, queueSize int) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		evsw:   evsw,
		store:  st,
		peers:  cmap.NewCMap(),
		queue:  make(chan *types.VerifiedBlock, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.BaseService = *service.NewBaseService(nil, "Broadcaster", b)
	return b
}

func (b *Broadcaster) AddPeer(id string, peer ConsensusDispatch) {
	b.peers.Set(id, peer)
}

func (b *Broadcaster) RemovePeer(id string) {
	b.peers.Delete(id)
}

func (b *Broadcaster) NumPeers() int {
	return b.peers.Size()
}

func (b *Broadcaster) OnStart() error {
	// 监听新区块事件，listener运行在core thread上，不能阻塞
	err := b.evsw.AddListenerForEvent(broadcasterSubscriber, EventNewBlock, func(data events.EventData) {
		block := data.(*types.VerifiedBlock)
		select {
		case b.queue <- block:
		default:
			// peers fetch it through the missing ancestors of later blocks
			b.Logger.Error("broadcast queue is full, dropping block", "block", block)
		}
	})
	if err != nil {
		return err
	}
	go b.broadcastRoutine()
	return nil
}

func (b *Broadcaster) OnStop() {
	b.evsw.RemoveListener(broadcasterSubscriber)
	b.cancel()
}

// Wait blocks until the broadcast routine exited.
func (b *Broadcaster) Wait() {
	<-b.done
}

func (b *Broadcaster) broadcastRoutine() {
	defer close(b.done)
	for {
		select {
		case <-b.Quit():
			return
		case block := <-b.queue:
			for _, id := range b.peers.Keys() {
				peer, ok := b.peers.Get(id).(ConsensusDispatch)
				if !ok {
					continue
				}
				b.sendBlocks(id, peer, []*types.VerifiedBlock{block})
			}
		}
	}
}

// sendBlocks delivers blocks to peer and answers its missing ancestors
// from the local store until the peer has nothing left to ask for.
func (b *Broadcaster) sendBlocks(id string, peer ConsensusDispatch, blocks []*types.VerifiedBlock) {
	for len(blocks) > 0 {
		missing, err := peer.AddBlocks(b.ctx, blocks)
		if err != nil {
			if !IsTerminalDispatchError(err) {
				b.Logger.Error("failed to send blocks", "peer", id, "err", err)
			}
			return
		}
		if len(missing) == 0 {
			return
		}

		found, err := b.store.ReadBlocks(missing)
		if err != nil {
			b.Logger.Error("failed to read missing blocks", "peer", id, "err", err)
			return
		}
		next := make([]*types.VerifiedBlock, 0, len(found))
		for _, blk := range found {
			if blk != nil {
				next = append(next, blk)
			}
		}
		blocks = next
		b.Logger.Debug("sending missing ancestors", "peer", id, "asked", len(missing), "found", len(blocks))
	}
}
