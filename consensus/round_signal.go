package consensus

import (
	"context"

	"dagbft/types"

	"github.com/pkg/errors"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

var ErrRoundSignalClosed = errors.New("round signal closed")

// closedCh is returned by Changed when a change is already pending.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// RoundSignal broadcasts the latest threshold clock round to any number of
// subscribers. Only the latest value is kept: a slow subscriber skips
// intermediate rounds but never reads a round lower than one it read before.
//
// Publish never blocks on subscribers.
type RoundSignal struct {
	mtx     tmsync.RWMutex
	round   types.Round
	version uint64
	changed chan struct{} // closed and replaced on every accepted publish
	closed  bool
}

func NewRoundSignal(seed types.Round) *RoundSignal {
	return &RoundSignal{
		round:   seed,
		changed: make(chan struct{}),
	}
}

// Publish stores round if it is higher than the current one and wakes every
// subscriber. It returns false when the round was ignored.
func (s *RoundSignal) Publish(round types.Round) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed || round <= s.round {
		return false
	}
	s.round = round
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	return true
}

// Round peeks at the latest round without affecting any subscription.
func (s *RoundSignal) Round() types.Round {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.round
}

// Close tells subscribers no more rounds will be published. Safe to call
// more than once.
func (s *RoundSignal) Close() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

func (s *RoundSignal) IsClosed() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.closed
}

// Subscribe returns a subscription that has already observed the current
// round.
func (s *RoundSignal) Subscribe() *RoundSubscription {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return &RoundSubscription{signal: s, seen: s.version}
}

func (s *RoundSignal) snapshot() (types.Round, uint64, chan struct{}, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.round, s.version, s.changed, s.closed
}

//-----------------------------------------------------------------------------

// RoundSubscription is the read side of a RoundSignal. It must be used by a
// single goroutine.
type RoundSubscription struct {
	signal *RoundSignal
	seen   uint64
}

// Current returns the latest round, never blocking, and marks it observed.
func (sub *RoundSubscription) Current() types.Round {
	round, version, _, _ := sub.signal.snapshot()
	sub.seen = version
	return round
}

// Changed is ready once a round newer than the last observed one is
// published or the signal is closed. Call Observe after it fires.
func (sub *RoundSubscription) Changed() <-chan struct{} {
	_, version, ch, closed := sub.signal.snapshot()
	if closed || version != sub.seen {
		return closedCh
	}
	return ch
}

// Observe returns the latest round and marks it observed, or
// ErrRoundSignalClosed once the signal is closed.
func (sub *RoundSubscription) Observe() (types.Round, error) {
	round, version, _, closed := sub.signal.snapshot()
	if closed {
		return round, ErrRoundSignalClosed
	}
	sub.seen = version
	return round, nil
}

// WaitForChange blocks until a new round is published.
func (sub *RoundSubscription) WaitForChange(ctx context.Context) (types.Round, error) {
	select {
	case <-sub.Changed():
		return sub.Observe()
	case <-ctx.Done():
		return sub.signal.Round(), ctx.Err()
	}
}
