package consensus

import (
	"sync"
	"time"

	cstypes "dagbft/consensus/types"
	"dagbft/types"

	jsoniter "github.com/json-iterator/go"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	CoreMetricLabel          = "core"
	LeaderTimeoutMetricLabel = "leader_timeout"
)

//-----------------------------------------------------------------------------
// core

func newCoreMetric() *coreMetric {
	return &coreMetric{}
}

type coreMetric struct {
	mtx               sync.RWMutex
	Round             types.Round `json:"round"`               // threshold clock的当前round
	LastProposedRound types.Round `json:"last_proposed_round"` // 本节点最后一次提案的round
	LastProposedAt    time.Time   `json:"last_proposed_at"`
	ProposedBlocks    int64       `json:"proposed_blocks"`
	ForcedBlocks      int64       `json:"forced_blocks"` // leader超时后强制产生的区块
	AcceptedBlocks    int64       `json:"accepted_blocks"`
	SuspendedBlocks   int         `json:"suspended_blocks"`
	MissingBlocks     int         `json:"missing_blocks"`
}

func (cm *coreMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *coreMetric) MarkRound(round types.Round) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Round = round
}

func (cm *coreMetric) MarkProposed(round types.Round, at time.Time, forced bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.LastProposedRound = round
	cm.LastProposedAt = at
	cm.ProposedBlocks++
	if forced {
		cm.ForcedBlocks++
	}
}

func (cm *coreMetric) MarkAccepted(n int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.AcceptedBlocks += int64(n)
}

func (cm *coreMetric) MarkPending(suspended, missing int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.SuspendedBlocks = suspended
	cm.MissingBlocks = missing
}

//-----------------------------------------------------------------------------
// leader timeout

// LeaderTimeoutStatus is a point in time view of a leader timeout task.
type LeaderTimeoutStatus struct {
	Running        bool        `json:"running"`
	LeaderRound    types.Round `json:"leader_round"`
	Step           string      `json:"step"`
	Deadline       time.Time   `json:"deadline"`
	Arms           int64       `json:"arms"` // timer被重置的次数
	Timeouts       int64       `json:"timeouts"`
	LastFiredRound types.Round `json:"last_fired_round"`
	DispatchErrors int64       `json:"dispatch_errors"`
	LastError      string      `json:"last_error,omitempty"`

	ForceLatencyMeanUs float64 `json:"force_latency_mean_us"`
	ForceLatencyP99Us  float64 `json:"force_latency_p99_us"`
}

func newLeaderTimeoutMetric() *leaderTimeoutMetric {
	return &leaderTimeoutMetric{
		timeouts:       gometrics.NewCounter(),
		dispatchErrors: gometrics.NewCounter(),
		forceLatency:   gometrics.NewHistogram(gometrics.NewUniformSample(1028)),
	}
}

type leaderTimeoutMetric struct {
	mtx    sync.RWMutex
	status LeaderTimeoutStatus

	timeouts       gometrics.Counter
	dispatchErrors gometrics.Counter
	forceLatency   gometrics.Histogram // microseconds
}

func (lm *leaderTimeoutMetric) Status() LeaderTimeoutStatus {
	lm.mtx.RLock()
	status := lm.status
	lm.mtx.RUnlock()

	status.Timeouts = lm.timeouts.Count()
	status.DispatchErrors = lm.dispatchErrors.Count()
	snapshot := lm.forceLatency.Snapshot()
	status.ForceLatencyMeanUs = snapshot.Mean()
	status.ForceLatencyP99Us = snapshot.Percentile(0.99)
	return status
}

func (lm *leaderTimeoutMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(lm.Status())
	return s
}

func (lm *leaderTimeoutMetric) MarkRunning(running bool) {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	lm.status.Running = running
}

func (lm *leaderTimeoutMetric) MarkState(state cstypes.LeaderTimeoutState) {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	lm.status.LeaderRound = state.LeaderRound
	lm.status.Step = state.Step().String()
	lm.status.Deadline = state.Deadline
}

func (lm *leaderTimeoutMetric) MarkArmed(state cstypes.LeaderTimeoutState) {
	lm.MarkState(state)
	lm.mtx.Lock()
	lm.status.Arms++
	lm.mtx.Unlock()
}

func (lm *leaderTimeoutMetric) MarkFired(state cstypes.LeaderTimeoutState) {
	lm.MarkState(state)
	lm.mtx.Lock()
	lm.status.LastFiredRound = state.LeaderRound
	lm.mtx.Unlock()
	lm.timeouts.Inc(1)
}

func (lm *leaderTimeoutMetric) MarkDispatch(took time.Duration, err error) {
	lm.forceLatency.Update(took.Microseconds())
	if err == nil {
		return
	}
	lm.dispatchErrors.Inc(1)
	lm.mtx.Lock()
	lm.status.LastError = err.Error()
	lm.mtx.Unlock()
}
