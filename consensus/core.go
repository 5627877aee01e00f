package consensus

import (
	"sort"
	"time"

	cfg "dagbft/config"
	mempl "dagbft/mempool"
	mempoolmock "dagbft/mempool/mock"
	"dagbft/store"
	"dagbft/types"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
)

// suspendedBlock waits in the core until every ancestor is accepted.
type suspendedBlock struct {
	block   *types.VerifiedBlock
	missing map[types.BlockRef]struct{}
}

// Core is the single threaded consensus state of one authority. It accepts
// blocks into the local DAG, drives the threshold clock and proposes own
// blocks. Core is not safe for concurrent use: CoreThread owns it and every
// caller goes through ConsensusDispatch.
type Core struct {
	config    *cfg.ConsensusConfig
	committee *types.Committee
	own       types.AuthorityIndex
	signer    types.BlockSigner
	store     store.Store
	mempool   mempl.Mempool
	clock     clock.Clock
	evsw      events.Fireable
	signal    *RoundSignal

	metrics *Metrics
	metric  *coreMetric
	logger  log.Logger

	threshold *ThresholdClock
	accepted  map[types.BlockRef]*types.VerifiedBlock
	byAuthor  [][]*types.VerifiedBlock // 每个authority已接受的区块，按round升序
	suspended map[types.BlockRef]*suspendedBlock
	// missing ancestor -> suspended blocks that reference it
	missingAncestors map[types.BlockRef]map[types.BlockRef]struct{}

	lastProposed   *types.VerifiedBlock
	lastProposedAt time.Time
}

type CoreOption func(*Core)

func WithCoreClock(clk clock.Clock) CoreOption {
	return func(c *Core) { c.clock = clk }
}

func WithCoreMetrics(metrics *Metrics) CoreOption {
	return func(c *Core) { c.metrics = metrics }
}

func WithCoreMempool(mempool mempl.Mempool) CoreOption {
	return func(c *Core) { c.mempool = mempool }
}

// WithEventSwitch sets where EventNewBlock and EventNewRound are fired.
// Listeners run on the core thread and must not call back into it
// synchronously.
func WithEventSwitch(evsw events.Fireable) CoreOption {
	return func(c *Core) { c.evsw = evsw }
}

func WithCoreLogger(logger log.Logger) CoreOption {
	return func(c *Core) { c.logger = logger }
}

// NewCore builds the core of authority own and recovers the DAG from st. The
// returned core has accepted every genesis block and every stored block.
func NewCore(
	config *cfg.ConsensusConfig,
	committee *types.Committee,
	own types.AuthorityIndex,
	signer types.BlockSigner,
	st store.Store,
	options ...CoreOption,
) (*Core, error) {
	if !committee.HasAuthority(own) {
		return nil, errors.Errorf("authority %d is not in the committee", own)
	}

	c := &Core{
		config:           config,
		committee:        committee,
		own:              own,
		signer:           signer,
		store:            st,
		mempool:          mempoolmock.Mempool{},
		clock:            clock.New(),
		evsw:             nopFireable{},
		metrics:          NopMetrics(),
		metric:           newCoreMetric(),
		logger:           log.NewNopLogger(),
		threshold:        NewThresholdClock(committee, types.GenesisRound),
		accepted:         make(map[types.BlockRef]*types.VerifiedBlock),
		byAuthor:         make([][]*types.VerifiedBlock, committee.Size()),
		suspended:        make(map[types.BlockRef]*suspendedBlock),
		missingAncestors: make(map[types.BlockRef]map[types.BlockRef]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	for _, b := range types.GenesisBlocks(committee) {
		c.acceptBlock(b)
	}
	c.lastProposed = c.byAuthor[own][0]

	if err := c.recover(); err != nil {
		return nil, err
	}
	c.signal = NewRoundSignal(c.threshold.Round())

	c.logger.Info("consensus core ready",
		"round", c.threshold.Round(), "last_proposed", c.lastProposed.Round, "accepted", len(c.accepted))
	return c, nil
}

// recover replays every stored block in round order. Blocks that were
// suspended when the node stopped are suspended again.
func (c *Core) recover() error {
	blocks, err := c.store.ScanBlocks(types.GenesisRound.Next())
	if err != nil {
		return errors.Wrap(err, "scan stored blocks")
	}
	for _, b := range blocks {
		if _, ok := c.accepted[b.Reference()]; ok {
			continue
		}
		c.tryAccept(b)
		if b.Author == c.own && b.Round > c.lastProposed.Round {
			c.lastProposed = b
		}
	}
	if len(c.suspended) > 0 {
		c.logger.Info("recovered suspended blocks", "suspended", len(c.suspended))
	}
	c.updatePending()
	return nil
}

// RoundSignal publishes every threshold clock advance of this core.
func (c *Core) RoundSignal() *RoundSignal {
	return c.signal
}

func (c *Core) MetricItem() *coreMetric {
	return c.metric
}

func (c *Core) Round() types.Round {
	return c.threshold.Round()
}

func (c *Core) LastProposedRound() types.Round {
	return c.lastProposed.Round
}

// AddBlocks accepts blocks whose ancestors are known, suspends the rest and
// then tries to propose. It returns the ancestors referenced by blocks of
// the batch that are still missing.
//
// Every new block of the batch is persisted before the DAG changes, so a
// failed write leaves the core untouched and the batch can be sent again.
func (c *Core) AddBlocks(blocks []*types.VerifiedBlock) ([]types.BlockRef, error) {
	var (
		valid = make([]*types.VerifiedBlock, 0, len(blocks))
		fresh = make([]*types.VerifiedBlock, 0, len(blocks))
		seen  = make(map[types.BlockRef]struct{}, len(blocks))
	)
	for _, b := range blocks {
		if err := c.checkBlock(b); err != nil {
			c.logger.Info("drop invalid block", "err", err)
			continue
		}
		valid = append(valid, b)
		ref := b.Reference()
		if _, ok := seen[ref]; ok || !c.isMissing(ref) {
			continue
		}
		seen[ref] = struct{}{}
		fresh = append(fresh, b)
	}

	if len(fresh) > 0 {
		if err := c.store.WriteBlocks(fresh); err != nil {
			return nil, errors.Wrap(err, "persist received blocks")
		}
	}
	accepted := 0
	for _, b := range fresh {
		accepted += len(c.tryAccept(b))
	}
	if accepted > 0 {
		c.logger.Debug("accepted blocks", "count", accepted, "round", c.threshold.Round())
	}
	c.updatePending()

	if _, err := c.tryNewBlock(false); err != nil {
		return nil, err
	}

	missing := make(map[types.BlockRef]struct{})
	for _, b := range valid {
		for _, a := range b.Ancestors {
			if c.isMissing(a) {
				missing[a] = struct{}{}
			}
		}
	}
	return refSet(missing), nil
}

// ForceNewBlock proposes for round without waiting for the leader of the
// previous round. It is a no-op if this node already proposed for round or
// the clock moved past it.
func (c *Core) ForceNewBlock(round types.Round) error {
	if c.lastProposed.Round >= round || c.threshold.Round() > round {
		c.logger.Debug("skip forced proposal", "round", round,
			"clock", c.threshold.Round(), "last_proposed", c.lastProposed.Round)
		return nil
	}
	_, err := c.tryNewBlock(true)
	return err
}

// MissingBlocks returns every referenced block that is neither accepted nor
// suspended.
func (c *Core) MissingBlocks() []types.BlockRef {
	missing := make(map[types.BlockRef]struct{}, len(c.missingAncestors))
	for ref := range c.missingAncestors {
		if c.isMissing(ref) {
			missing[ref] = struct{}{}
		}
	}
	return refSet(missing)
}

// BlocksAtRound returns the accepted blocks of round ordered by author.
func (c *Core) BlocksAtRound(round types.Round) []*types.VerifiedBlock {
	var blocks []*types.VerifiedBlock
	for _, authored := range c.byAuthor {
		for _, b := range authored {
			if b.Round == round {
				blocks = append(blocks, b)
			}
		}
	}
	return blocks
}

// Close ends the round signal. The core must not be used afterwards.
func (c *Core) Close() {
	c.signal.Close()
}

//-----------------------------------------------------------------------------

func (c *Core) checkBlock(b *types.VerifiedBlock) error {
	if b == nil || b.Block == nil {
		return errors.New("nil block")
	}
	if !c.committee.HasAuthority(b.Author) {
		return errors.Errorf("unknown author %d", b.Author)
	}
	return b.ValidateBasic()
}

// tryAccept accepts b if all its ancestors are accepted, together with
// every suspended block it unblocks. Otherwise b is suspended.
func (c *Core) tryAccept(b *types.VerifiedBlock) []*types.VerifiedBlock {
	ref := b.Reference()
	if _, ok := c.accepted[ref]; ok {
		return nil
	}
	if _, ok := c.suspended[ref]; ok {
		return nil
	}

	missing := make(map[types.BlockRef]struct{})
	for _, a := range b.Ancestors {
		if _, ok := c.accepted[a]; !ok {
			missing[a] = struct{}{}
		}
	}
	if len(missing) > 0 {
		c.suspended[ref] = &suspendedBlock{block: b, missing: missing}
		for a := range missing {
			deps, ok := c.missingAncestors[a]
			if !ok {
				deps = make(map[types.BlockRef]struct{})
				c.missingAncestors[a] = deps
			}
			deps[ref] = struct{}{}
		}
		return nil
	}

	var accepted []*types.VerifiedBlock
	queue := []*types.VerifiedBlock{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		c.acceptBlock(cur)
		accepted = append(accepted, cur)

		curRef := cur.Reference()
		deps := c.missingAncestors[curRef]
		delete(c.missingAncestors, curRef)
		for dep := range deps {
			s, ok := c.suspended[dep]
			if !ok {
				continue
			}
			delete(s.missing, curRef)
			if len(s.missing) == 0 {
				delete(c.suspended, dep)
				queue = append(queue, s.block)
			}
		}
	}
	return accepted
}

// acceptBlock inserts b into the DAG. All its ancestors must be accepted.
func (c *Core) acceptBlock(b *types.VerifiedBlock) {
	ref := b.Reference()
	c.accepted[ref] = b

	authored := c.byAuthor[b.Author]
	i := sort.Search(len(authored), func(i int) bool { return authored[i].Round > b.Round })
	authored = append(authored, nil)
	copy(authored[i+1:], authored[i:])
	authored[i] = b
	c.byAuthor[b.Author] = authored

	c.metrics.AcceptedBlocks.Add(1)
	c.metric.MarkAccepted(1)

	if b.Round != types.GenesisRound && b.Author != c.own {
		if err := c.mempool.Update(b.Round, b.Txs); err != nil {
			c.logger.Error("failed to update mempool", "block", b, "err", err)
		}
	}

	if c.threshold.AddBlock(ref) {
		c.onNewRound(c.threshold.Round())
	}
}

func (c *Core) onNewRound(round types.Round) {
	c.metrics.Round.Set(float64(round))
	c.metric.MarkRound(round)
	if c.signal != nil {
		c.signal.Publish(round)
	}
	c.evsw.FireEvent(EventNewRound, EventDataNewRound{Round: round})
}

// tryNewBlock proposes for the clock round when this node hasn't yet. Unless
// forced, it waits for the leader block of the previous round and for
// MinRoundDelay since the last proposal.
func (c *Core) tryNewBlock(force bool) (*types.VerifiedBlock, error) {
	round := c.threshold.Round()
	if round <= c.lastProposed.Round {
		return nil, nil
	}

	now := c.clock.Now()
	if !force {
		prev := round.Prev()
		leader := c.latestBelow(c.committee.Leader(prev), round)
		if leader == nil || leader.Round != prev {
			return nil, nil
		}
		if now.Sub(c.lastProposedAt) < c.config.MinRoundDelay {
			return nil, nil
		}
	}

	var ancestors []types.BlockRef
	for i := range c.byAuthor {
		if b := c.latestBelow(types.AuthorityIndex(i), round); b != nil {
			ancestors = append(ancestors, b.Reference())
		}
	}

	txs := c.mempool.ReapMaxTxs(c.config.MaxBlockTxs)
	block := types.MakeBlock(round, c.own, now.UnixNano()/int64(time.Millisecond), ancestors, txs)
	if err := c.signer.SignBlock(block); err != nil {
		return nil, errors.Wrapf(err, "sign block of round %d", round)
	}
	vb := types.NewVerifiedBlock(block)

	// 先持久化再接受，写失败时状态不变，之后可以重试
	if err := c.store.WriteBlocks([]*types.VerifiedBlock{vb}); err != nil {
		return nil, errors.Wrapf(err, "persist own block of round %d", round)
	}
	c.lastProposed = vb
	c.lastProposedAt = now
	c.tryAccept(vb)

	if err := c.mempool.Update(round, txs); err != nil {
		c.logger.Error("failed to update mempool", "round", round, "err", err)
	}

	c.metrics.ProposedBlocks.Add(1)
	if force {
		c.metrics.ForcedBlocks.Add(1)
	}
	c.metric.MarkProposed(round, now, force)
	c.updatePending()

	c.logger.Info("proposed block", "block", vb, "txs", len(txs), "forced", force)
	c.evsw.FireEvent(EventNewBlock, vb)
	return vb, nil
}

// latestBelow returns the highest round block of author below round.
func (c *Core) latestBelow(author types.AuthorityIndex, round types.Round) *types.VerifiedBlock {
	authored := c.byAuthor[author]
	i := sort.Search(len(authored), func(i int) bool { return authored[i].Round >= round })
	if i == 0 {
		return nil
	}
	return authored[i-1]
}

func (c *Core) isMissing(ref types.BlockRef) bool {
	if _, ok := c.accepted[ref]; ok {
		return false
	}
	_, ok := c.suspended[ref]
	return !ok
}

func (c *Core) updatePending() {
	missing := 0
	for ref := range c.missingAncestors {
		if c.isMissing(ref) {
			missing++
		}
	}
	c.metrics.SuspendedBlocks.Set(float64(len(c.suspended)))
	c.metrics.MissingBlocks.Set(float64(missing))
	c.metric.MarkPending(len(c.suspended), missing)
}

func refSet(set map[types.BlockRef]struct{}) []types.BlockRef {
	refs := make([]types.BlockRef, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	return types.SortBlockRefs(refs)
}

//-----------------------------------------------------------------------------

type nopFireable struct{}

func (nopFireable) FireEvent(string, events.EventData) {}
