package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics returns the JSON metric items, all of them when label is
// empty.
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	var labels []string
	if label != "" {
		labels = []string{label}
	}
	env.Logger.Debug("json metrics", "labels", labels)
	return &ResultMetrics{Metrics: env.MetricSet.Snapshot(labels...)}, nil
}
