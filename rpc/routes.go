package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// info
	"status":    rpc.NewRPCFunc(Status, ""),
	"committee": rpc.NewRPCFunc(Committee, ""),
	"metrics":   rpc.NewRPCFunc(JSONMetrics, "label"),

	// dag
	"missing_blocks": rpc.NewRPCFunc(MissingBlocks, ""),
	"dag_round":      rpc.NewRPCFunc(DAGRound, "round"),
	"wait_round":     rpc.NewRPCFunc(WaitRound, "round,timeout_ms"),

	// mempool
	"broadcast_tx":        rpc.NewRPCFunc(BroadcastTx, "tx"),
	"num_unconfirmed_txs": rpc.NewRPCFunc(NumUnconfirmedTxs, ""),
}
