package consensus

import (
	"context"
	"sync"
	"time"

	cstypes "dagbft/consensus/types"
	"dagbft/libs/metric"

	"github.com/benbjohnson/clock"
	"github.com/tendermint/tendermint/libs/log"
)

// LeaderTimeoutTask keeps the DAG moving when the leader of a round is slow
// or down. Each time the threshold clock enters a round the task arms a
// timer of leaderTimeout; if no newer round shows up before it expires the
// task calls ForceNewBlock once for that round.
//
//	Armed --timer expires--> Fired --round changes--> Armed
//	  ^                                                 |
//	  +--------------------round changes----------------+
//
// The task never retries a round. A failed ForceNewBlock is logged and the
// task waits for the next round, except for ErrCoreShuttingDown which ends
// the task.
type LeaderTimeoutTask struct {
	dispatcher    ConsensusDispatch
	rounds        *RoundSubscription
	leaderTimeout time.Duration

	clock   clock.Clock
	metrics *Metrics
	metric  *leaderTimeoutMetric
	logger  log.Logger

	state cstypes.LeaderTimeoutState
}

type LeaderTimeoutOption func(*LeaderTimeoutTask)

func WithLeaderTimeoutLogger(logger log.Logger) LeaderTimeoutOption {
	return func(t *LeaderTimeoutTask) { t.logger = logger }
}

// WithLeaderTimeoutClock replaces the wall clock, tests pass a clock.Mock.
func WithLeaderTimeoutClock(clk clock.Clock) LeaderTimeoutOption {
	return func(t *LeaderTimeoutTask) { t.clock = clk }
}

func WithLeaderTimeoutMetrics(metrics *Metrics) LeaderTimeoutOption {
	return func(t *LeaderTimeoutTask) { t.metrics = metrics }
}

// LeaderTimeoutTaskHandle controls a running LeaderTimeoutTask.
type LeaderTimeoutTaskHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc

	done chan struct{}
	err  error // set before done is closed

	metric *leaderTimeoutMetric
}

// StartLeaderTimeoutTask starts the task on its own goroutine. The timeout
// is fixed for the lifetime of the task.
func StartLeaderTimeoutTask(
	dispatcher ConsensusDispatch,
	rounds *RoundSubscription,
	leaderTimeout time.Duration,
	options ...LeaderTimeoutOption,
) *LeaderTimeoutTaskHandle {
	t := &LeaderTimeoutTask{
		dispatcher:    dispatcher,
		rounds:        rounds,
		leaderTimeout: leaderTimeout,
		clock:         clock.New(),
		metrics:       NopMetrics(),
		metric:        newLeaderTimeoutMetric(),
		logger:        log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &LeaderTimeoutTaskHandle{
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
		metric: t.metric,
	}
	t.metric.MarkRunning(true)

	go func() {
		defer close(h.done)
		defer cancel()
		h.err = t.run(ctx, h.stop)
		t.metric.MarkRunning(false)
	}()
	return h
}

// Stop ends the task and waits for it to exit. No dispatch call is made
// after Stop returns. Calling Stop more than once, or after the task ended
// on its own, is fine.
func (h *LeaderTimeoutTaskHandle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.cancel()
	})
	<-h.done
}

// Done is closed once the task exited.
func (h *LeaderTimeoutTaskHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns why the task exited on its own: ErrCoreShuttingDown or
// ErrRoundSignalClosed. It is nil while running and after Stop.
func (h *LeaderTimeoutTaskHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *LeaderTimeoutTaskHandle) Status() LeaderTimeoutStatus {
	return h.metric.Status()
}

func (h *LeaderTimeoutTaskHandle) MetricItem() metric.MetricItem {
	return h.metric
}

//-----------------------------------------------------------------------------

func (t *LeaderTimeoutTask) run(ctx context.Context, stop <-chan struct{}) error {
	t.state.Arm(t.rounds.Current(), t.clock.Now(), t.leaderTimeout)
	timer := t.clock.Timer(t.leaderTimeout)
	defer timer.Stop()
	t.onArmed()

	for {
		// 已经触发过的round不再等待timer
		var timeoutC <-chan time.Time
		if !t.state.Fired {
			timeoutC = timer.C
		}

		select {
		case <-stop:
			t.logger.Info("leader timeout task stopped", "round", t.state.LeaderRound)
			return nil

		case <-timeoutC:
			if !t.state.MarkFired() {
				continue
			}
			if err := t.forceNewBlock(ctx); err != nil {
				select {
				case <-stop:
					return nil
				default:
				}
				if IsTerminalDispatchError(err) {
					t.logger.Info("consensus core shutting down, leader timeout task exits", "err", err)
					return err
				}
			}

		case <-t.rounds.Changed():
			round, err := t.rounds.Observe()
			if err != nil {
				t.logger.Info("round signal closed, leader timeout task exits", "round", t.state.LeaderRound)
				return err
			}
			t.state.Arm(round, t.clock.Now(), t.leaderTimeout)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(t.leaderTimeout)
			t.onArmed()
		}
	}
}

func (t *LeaderTimeoutTask) onArmed() {
	t.metrics.LeaderTimeoutRound.Set(float64(t.state.LeaderRound))
	t.metric.MarkArmed(t.state)
	t.logger.Debug("leader timeout armed", "round", t.state.LeaderRound, "deadline", t.state.Deadline)
}

func (t *LeaderTimeoutTask) forceNewBlock(ctx context.Context) error {
	round := t.state.LeaderRound
	t.metrics.LeaderTimeouts.Add(1)
	t.metric.MarkFired(t.state)
	t.logger.Info("leader timeout, forcing new block", "round", round, "timeout", t.leaderTimeout)

	start := t.clock.Now()
	err := t.dispatcher.ForceNewBlock(ctx, round)
	took := t.clock.Since(start)

	t.metrics.ForceNewBlockSeconds.Observe(took.Seconds())
	t.metric.MarkDispatch(took, err)
	if err != nil {
		t.metrics.LeaderTimeoutErrors.Add(1)
		t.logger.Error("failed to force new block", "round", round, "err", err)
	}
	return err
}
