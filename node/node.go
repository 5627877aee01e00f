package node

import (
	"context"
	"net"
	"net/http"
	"strings"

	cfg "dagbft/config"
	"dagbft/consensus"
	"dagbft/libs/metric"
	mempl "dagbft/mempool"
	"dagbft/privval"
	"dagbft/rpc"
	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

const broadcastQueueSize = 256

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node is one authority of the committee: the consensus core thread, its
// leader timeout task, the block store, the mempool and the RPC server.
type Node struct {
	service.BaseService

	// config
	config    *cfg.Config
	committee *types.Committee
	privVal   types.BlockSigner
	authority types.AuthorityIndex
	nodeInfo  rpc.NodeInfo
	clock     clock.Clock

	// services
	eventSwitch   events.EventSwitch
	blockStore    *store.BlockStore
	mempool       *mempl.ListMempool
	core          *consensus.Core
	coreThread    *consensus.CoreThread
	broadcaster   *consensus.Broadcaster
	leaderTimeout *consensus.LeaderTimeoutTaskHandle
	metrics       *consensus.Metrics
	metricSet     *metric.MetricSet

	rpcListeners  []net.Listener
	prometheusSrv *http.Server
}

type Option func(*Node)

// WithClock replaces the wall clock used by the core and the leader timeout.
func WithClock(clk clock.Clock) Option {
	return func(n *Node) { n.clock = clk }
}

// DefaultNewNode returns a node using the committee and private key files
// from config.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	committee, err := types.LoadCommitteeFile(config.CommitteeFile())
	if err != nil {
		return nil, errors.Wrap(err, "load committee")
	}
	pv := privval.LoadFilePV(config.PrivValidatorKeyFile())
	return NewNode(config, pv, committee, logger)
}

func NewNode(
	config *cfg.Config,
	privVal types.BlockSigner,
	committee *types.Committee,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	if err := committee.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid committee")
	}
	pub, err := privVal.GetPubKey()
	if err != nil {
		return nil, errors.Wrap(err, "can't get pubkey")
	}
	idx, auth := committee.GetByAddress(pub.Address())
	if idx < 0 {
		return nil, errors.Errorf("validator %X is not in the committee", pub.Address())
	}
	authority := types.AuthorityIndex(idx)

	nodeInfo, err := makeNodeInfo(config, authority, auth)
	if err != nil {
		return nil, err
	}

	n := &Node{
		config:    config,
		committee: committee,
		privVal:   privVal,
		authority: authority,
		nodeInfo:  nodeInfo,
		clock:     clock.New(),
		metricSet: metric.NewMetricSet(),
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	for _, option := range options {
		option(n)
	}

	n.metrics = consensus.NopMetrics()
	if config.Instrumentation.Prometheus {
		n.metrics = consensus.PrometheusMetrics(config.Instrumentation.Namespace, "moniker", config.Moniker)
	}

	n.blockStore, err = store.NewBlockStore("dag", config.DBBackend, config.DBDir(), logger.With("module", "store"))
	if err != nil {
		return nil, err
	}

	n.mempool = mempl.NewListMempool(config.Mempool)
	n.mempool.SetLogger(logger.With("module", "mempool"))

	n.eventSwitch = events.NewEventSwitch()
	n.eventSwitch.SetLogger(logger.With("module", "events"))

	consensusLogger := logger.With("module", "consensus")
	n.core, err = consensus.NewCore(
		config.Consensus,
		committee,
		authority,
		privVal,
		n.blockStore,
		consensus.WithCoreClock(n.clock),
		consensus.WithCoreMempool(n.mempool),
		consensus.WithCoreMetrics(n.metrics),
		consensus.WithEventSwitch(n.eventSwitch),
		consensus.WithCoreLogger(consensusLogger),
	)
	if err != nil {
		n.blockStore.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "create consensus core")
	}
	n.coreThread = consensus.NewCoreThread(n.core, config.Consensus.MailboxSize)
	n.coreThread.SetLogger(consensusLogger)

	n.broadcaster = consensus.NewBroadcaster(n.eventSwitch, n.blockStore, broadcastQueueSize)
	n.broadcaster.SetLogger(logger.With("module", "broadcaster"))

	for label, item := range map[string]metric.MetricItem{
		consensus.CoreMetricLabel: n.core.MetricItem(),
		mempl.MetricLabel:         n.mempool.MetricItem(),
	} {
		if err := n.metricSet.SetMetrics(label, item); err != nil {
			return nil, err
		}
	}

	return n, nil
}

func (n *Node) OnStart() error {
	if err := n.eventSwitch.Start(); err != nil {
		return err
	}
	if err := n.coreThread.Start(); err != nil {
		return err
	}
	if err := n.broadcaster.Start(); err != nil {
		return err
	}

	n.leaderTimeout = consensus.StartLeaderTimeoutTask(
		n.coreThread,
		n.core.RoundSignal().Subscribe(),
		n.config.Consensus.LeaderTimeout,
		consensus.WithLeaderTimeoutClock(n.clock),
		consensus.WithLeaderTimeoutMetrics(n.metrics),
		consensus.WithLeaderTimeoutLogger(n.Logger.With("module", "leader-timeout")),
	)
	if err := n.metricSet.SetMetrics(consensus.LeaderTimeoutMetricLabel, n.leaderTimeout.MetricItem()); err != nil {
		return err
	}
	go n.watchLeaderTimeout(n.leaderTimeout)

	if n.config.RPC.IsRPCEnabled() {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
	}

	n.Logger.Info("node started", "authority", n.authority, "round", n.core.RoundSignal().Round(),
		"committee", n.committee.Size())
	return nil
}

// OnStop stops the leader timeout first, then the core thread, then closes
// the round signal and the store.
func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	n.leaderTimeout.Stop()
	n.metricSet.RemoveMetrics(consensus.LeaderTimeoutMetricLabel)

	if err := n.broadcaster.Stop(); err != nil {
		n.Logger.Error("Error stopping broadcaster", "err", err)
	}
	n.broadcaster.Wait()

	if err := n.coreThread.Stop(); err != nil {
		n.Logger.Error("Error stopping core thread", "err", err)
	}
	n.coreThread.Wait()
	n.core.Close()

	if err := n.eventSwitch.Stop(); err != nil {
		n.Logger.Error("Error stopping event switch", "err", err)
	}

	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	if n.prometheusSrv != nil {
		if err := n.prometheusSrv.Shutdown(context.Background()); err != nil {
			n.Logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}

	if err := n.blockStore.Close(); err != nil {
		n.Logger.Error("Error closing block store", "err", err)
	}
}

// watchLeaderTimeout logs when the leader timeout task ends on its own.
func (n *Node) watchLeaderTimeout(h *consensus.LeaderTimeoutTaskHandle) {
	<-h.Done()
	if err := h.Err(); err != nil {
		n.Logger.Info("leader timeout task exited", "err", err)
	}
}

// ConfigureRPC makes the node the environment of the RPC handlers.
func (n *Node) ConfigureRPC() {
	rpc.SetEnvironment(&rpc.Environment{
		Consensus:     n.coreThread,
		RoundSignal:   n.core.RoundSignal(),
		LeaderTimeout: n.leaderTimeout.Status,
		Mempool:       n.mempool,
		Committee:     n.committee,
		NodeInfo:      n.nodeInfo,
		MetricSet:     n.metricSet,
		Logger:        n.Logger.With("module", "rpc"),
	})
}

func (n *Node) startRPC() ([]net.Listener, error) {
	n.ConfigureRPC()

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	config := rpcserver.DefaultConfig()
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, len(listenAddrs))
	for i, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wm := rpcserver.NewWebsocketManager(rpc.Routes)
		wm.SetLogger(rpcLogger.With("protocol", "websocket"))
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil &&
				!strings.Contains(err.Error(), "use of closed network connection") {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners[i] = listener
	}
	return listeners, nil
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Error starting or closing listener:
			n.Logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

//-----------------------------------------------------------------------------

// AddPeer makes the node forward its own blocks to peer.
func (n *Node) AddPeer(id string, peer consensus.ConsensusDispatch) {
	n.broadcaster.AddPeer(id, peer)
}

// ConnectNodes connects every node to every other one in process.
func ConnectNodes(nodes ...*Node) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.AddPeer(b.nodeInfo.Address.String(), b.coreThread)
			}
		}
	}
}

func (n *Node) Dispatch() *consensus.CoreThread {
	return n.coreThread
}

func (n *Node) RoundSignal() *consensus.RoundSignal {
	return n.core.RoundSignal()
}

func (n *Node) LeaderTimeout() *consensus.LeaderTimeoutTaskHandle {
	return n.leaderTimeout
}

func (n *Node) Authority() types.AuthorityIndex {
	return n.authority
}

func (n *Node) NodeInfo() rpc.NodeInfo {
	return n.nodeInfo
}

func (n *Node) Config() *cfg.Config {
	return n.config
}

func (n *Node) BlockStore() store.Store {
	return n.blockStore
}

func (n *Node) Mempool() mempl.Mempool {
	return n.mempool
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}
