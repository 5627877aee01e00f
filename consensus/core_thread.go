package consensus

import (
	"context"
	"sync/atomic"
	"time"

	"dagbft/types"

	"github.com/tendermint/tendermint/libs/service"
)

const (
	commandPending int32 = iota
	commandRunning
	commandCanceled
)

// coreCommand runs fn on the core thread and closes done afterwards. A
// command canceled while still queued never runs.
type coreCommand struct {
	name  string
	fn    func(*Core)
	state int32
	done  chan struct{}
}

// cancel reports whether the command was still pending and will now be
// skipped. False means fn is running or has run.
func (cmd *coreCommand) cancel() bool {
	return atomic.CompareAndSwapInt32(&cmd.state, commandPending, commandCanceled)
}

// CoreStatus is a snapshot of the core taken on the core thread.
type CoreStatus struct {
	Round             types.Round `json:"round"`
	LastProposedRound types.Round `json:"last_proposed_round"`
	AcceptedBlocks    int         `json:"accepted_blocks"`
	SuspendedBlocks   int         `json:"suspended_blocks"`
	MissingBlocks     int         `json:"missing_blocks"`
}

// CoreThread owns a Core and runs every command against it on one
// goroutine, in the order the commands were received. It implements
// ConsensusDispatch.
//
// Once the thread is stopped, or before it is started, every call returns
// ErrCoreShuttingDown.
type CoreThread struct {
	service.BaseService

	core    *Core
	mailbox chan *coreCommand

	started int32
	done    chan struct{} // closed when receiveRoutine returns
}

var _ ConsensusDispatch = (*CoreThread)(nil)

func NewCoreThread(core *Core, mailboxSize int) *CoreThread {
	ct := &CoreThread{
		core:    core,
		mailbox: make(chan *coreCommand, mailboxSize),
		done:    make(chan struct{}),
	}
	ct.BaseService = *service.NewBaseService(nil, "CoreThread", ct)
	return ct
}

func (ct *CoreThread) OnStart() error {
	atomic.StoreInt32(&ct.started, 1)
	go ct.receiveRoutine()
	return nil
}

// OnStop runs before Quit is closed, so it can't wait for receiveRoutine.
// Use Wait for that.
func (ct *CoreThread) OnStop() {
	ct.Logger.Info("stopping core thread", "pending", len(ct.mailbox))
}

// Wait blocks until the core thread has stopped and no command is running.
func (ct *CoreThread) Wait() {
	if atomic.LoadInt32(&ct.started) == 0 {
		return
	}
	<-ct.done
}

// Core returns the owned core. Only safe once the thread has stopped.
func (ct *CoreThread) Core() *Core {
	return ct.core
}

func (ct *CoreThread) receiveRoutine() {
	defer close(ct.done)
	for {
		select {
		case <-ct.Quit():
			ct.Logger.Info("core thread quit")
			return
		case cmd := <-ct.mailbox:
			ct.handleCommand(cmd)
		}
	}
}

func (ct *CoreThread) handleCommand(cmd *coreCommand) {
	defer close(cmd.done)
	if !atomic.CompareAndSwapInt32(&cmd.state, commandPending, commandRunning) {
		ct.Logger.Debug("skip canceled command", "cmd", cmd.name)
		return
	}
	start := time.Now()
	cmd.fn(ct.core)
	ct.Logger.Debug("handled command", "cmd", cmd.name, "took", time.Since(start))
}

// send queues fn and waits until it ran. When ctx ends or the thread stops
// while the command is still queued, the command is dropped and never runs.
// Once fn started, send waits for it to finish and returns nil.
func (ct *CoreThread) send(ctx context.Context, name string, fn func(*Core)) error {
	if !ct.IsRunning() {
		return ErrCoreShuttingDown
	}
	cmd := &coreCommand{name: name, fn: fn, done: make(chan struct{})}

	select {
	case ct.mailbox <- cmd:
	case <-ct.Quit():
		return ErrCoreShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	select {
	case <-cmd.done:
		return nil
	case <-ct.Quit():
		err = ErrCoreShuttingDown
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cmd.cancel() {
		return err
	}
	<-cmd.done
	return nil
}

func (ct *CoreThread) AddBlocks(ctx context.Context, blocks []*types.VerifiedBlock) ([]types.BlockRef, error) {
	var (
		missing []types.BlockRef
		err     error
	)
	if sendErr := ct.send(ctx, "add_blocks", func(c *Core) {
		missing, err = c.AddBlocks(blocks)
	}); sendErr != nil {
		return nil, sendErr
	}
	return missing, err
}

func (ct *CoreThread) ForceNewBlock(ctx context.Context, round types.Round) error {
	var err error
	if sendErr := ct.send(ctx, "force_new_block", func(c *Core) {
		err = c.ForceNewBlock(round)
	}); sendErr != nil {
		return sendErr
	}
	return err
}

func (ct *CoreThread) GetMissingBlocks(ctx context.Context) ([]types.BlockRef, error) {
	var missing []types.BlockRef
	if err := ct.send(ctx, "get_missing_blocks", func(c *Core) {
		missing = c.MissingBlocks()
	}); err != nil {
		return nil, err
	}
	return missing, nil
}

func (ct *CoreThread) BlocksAtRound(ctx context.Context, round types.Round) ([]*types.VerifiedBlock, error) {
	var blocks []*types.VerifiedBlock
	if err := ct.send(ctx, "blocks_at_round", func(c *Core) {
		blocks = c.BlocksAtRound(round)
	}); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (ct *CoreThread) Status(ctx context.Context) (CoreStatus, error) {
	var status CoreStatus
	if err := ct.send(ctx, "status", func(c *Core) {
		status = CoreStatus{
			Round:             c.Round(),
			LastProposedRound: c.LastProposedRound(),
			AcceptedBlocks:    len(c.accepted),
			SuspendedBlocks:   len(c.suspended),
			MissingBlocks:     len(c.MissingBlocks()),
		}
	}); err != nil {
		return CoreStatus{}, err
	}
	return status, nil
}
