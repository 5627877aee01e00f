package consensus

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "consensus"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Round of the threshold clock.
	Round metrics.Gauge
	// Blocks proposed by this node.
	ProposedBlocks metrics.Counter
	// Blocks proposed because the leader timeout fired.
	ForcedBlocks metrics.Counter
	// Blocks accepted into the DAG, own blocks included.
	AcceptedBlocks metrics.Counter
	// Blocks waiting for their ancestors.
	SuspendedBlocks metrics.Gauge
	// Referenced blocks this node doesn't have.
	MissingBlocks metrics.Gauge

	// Round the leader timeout is armed for.
	LeaderTimeoutRound metrics.Gauge
	// Number of times the leader timeout fired.
	LeaderTimeouts metrics.Counter
	// Failed ForceNewBlock calls made by the leader timeout.
	LeaderTimeoutErrors metrics.Counter
	// Latency of ForceNewBlock calls made by the leader timeout.
	ForceNewBlockSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Round: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round",
			Help:      "Round of the threshold clock.",
		}, labels).With(labelsAndValues...),
		ProposedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "proposed_blocks",
			Help:      "Number of blocks proposed by this node.",
		}, labels).With(labelsAndValues...),
		ForcedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "forced_blocks",
			Help:      "Number of blocks proposed without the leader block of the previous round.",
		}, labels).With(labelsAndValues...),
		AcceptedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "accepted_blocks",
			Help:      "Number of blocks accepted into the DAG.",
		}, labels).With(labelsAndValues...),
		SuspendedBlocks: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "suspended_blocks",
			Help:      "Number of blocks waiting for ancestors.",
		}, labels).With(labelsAndValues...),
		MissingBlocks: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "missing_blocks",
			Help:      "Number of referenced blocks not received yet.",
		}, labels).With(labelsAndValues...),
		LeaderTimeoutRound: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "leader_timeout_round",
			Help:      "Round the leader timeout is armed for.",
		}, labels).With(labelsAndValues...),
		LeaderTimeouts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "leader_timeouts",
			Help:      "Number of times the leader timeout fired.",
		}, labels).With(labelsAndValues...),
		LeaderTimeoutErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "leader_timeout_errors",
			Help:      "Number of failed ForceNewBlock calls.",
		}, labels).With(labelsAndValues...),
		ForceNewBlockSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "force_new_block_seconds",
			Help:      "Latency of ForceNewBlock calls.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 12),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Round:                discard.NewGauge(),
		ProposedBlocks:       discard.NewCounter(),
		ForcedBlocks:         discard.NewCounter(),
		AcceptedBlocks:       discard.NewCounter(),
		SuspendedBlocks:      discard.NewGauge(),
		MissingBlocks:        discard.NewGauge(),
		LeaderTimeoutRound:   discard.NewGauge(),
		LeaderTimeouts:       discard.NewCounter(),
		LeaderTimeoutErrors:  discard.NewCounter(),
		ForceNewBlockSeconds: discard.NewHistogram(),
	}
}
