package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/crypto"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/mosaicnetworks/tandem/src/net"
	"github.com/mosaicnetworks/tandem/src/node/state"
	"github.com/mosaicnetworks/tandem/src/slot"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClockSkew is returned when production is attempted for a slot that
	// is not the current one.
	ErrClockSkew = errors.New("clock skew")

	// ErrTxPoolFull is returned by SubmitTx when the transaction pool is at
	// capacity.
	ErrTxPoolFull = errors.New("transaction pool full")
)

// Node defines a tandem node
type Node struct {
	state.Manager

	conf   *Config
	logger *logrus.Entry

	validator *Validator
	directory *authority.Directory

	store  chain.Store
	chain  *chain.Chain
	gadget *finality.Gadget

	// coreLock serializes the worker loop with Shutdown
	coreLock sync.Mutex

	slotClock *slot.SlotClock
	ticker    *slot.Ticker
	slot      uint64 // last slot processed, atomic

	trans net.Transport
	netCh <-chan net.Message
	seen  *lru.Cache

	orphans   *orphanPool
	requests  map[string]uint64 // missing hash => slot of the last request
	syncNonce uint64

	txLock sync.Mutex
	txPool [][]byte

	observers []Observer
	counters  [numEventTypes]uint64

	lastFinalized string

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	start time.Time
}

// NewNode is a factory method that returns a Node instance. It checks the
// roles against the directory and builds the chain on the store, bootstrapping
// from it if it holds a previous run.
func NewNode(conf *Config,
	validator *Validator,
	directory *authority.Directory,
	store chain.Store,
	trans net.Transport,
	clock slot.Clock,
) (*Node, error) {

	if err := conf.Roles.Validate(directory, validator.ID()); err != nil {
		return nil, err
	}

	slotClock, err := slot.NewSlotClock(conf.GenesisTime, conf.SlotDuration, clock)
	if err != nil {
		return nil, err
	}

	logger := conf.Logger.WithFields(logrus.Fields{
		"prefix":  "node",
		"moniker": validator.Moniker,
	})

	verifier := keys.NewSecp256k1Verifier()

	c, err := chain.NewChain(
		chain.NewGenesisBlock(conf.GenesisTime.Unix()),
		directory,
		verifier,
		store,
		conf.Logger.WithField("prefix", "chain"),
	)
	if err != nil {
		return nil, err
	}

	gadget, err := finality.NewGadget(
		conf.Roles.GadgetState(),
		directory,
		c,
		validator.Signer(),
		verifier,
		finality.Config{
			RoundTimeout:    conf.RoundTimeout,
			MaxFutureRounds: conf.FutureRounds,
			Logger:          conf.Logger.WithField("prefix", "finality"),
		},
	)
	if err != nil {
		return nil, err
	}

	cacheSize := conf.SeenCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().SeenCacheSize
	}
	seen, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if conf.OrphanPoolSize <= 0 {
		conf.OrphanPoolSize = defaults.OrphanPoolSize
	}
	if conf.SyncLimit <= 0 {
		conf.SyncLimit = defaults.SyncLimit
	}
	if conf.SyncRetry == 0 {
		conf.SyncRetry = defaults.SyncRetry
	}

	node := Node{
		conf:          conf,
		logger:        logger,
		validator:     validator,
		directory:     directory,
		store:         store,
		chain:         c,
		gadget:        gadget,
		slotClock:     slotClock,
		ticker:        slot.NewTicker(slotClock),
		trans:         trans,
		netCh:         trans.Consumer(),
		seen:          seen,
		orphans:       newOrphanPool(conf.OrphanPoolSize),
		requests:      make(map[string]uint64),
		lastFinalized: c.Finalized().Hex(),
		shutdownCh:    make(chan struct{}),
		start:         time.Now(),
	}

	logger.WithFields(logrus.Fields{
		"id":        validator.ID(),
		"mode":      conf.Roles.Mode(),
		"authors":   directory.AuthorCount(),
		"voters":    directory.VoterCount(),
		"best":      c.Best().Height(),
		"finalized": c.Finalized().Height(),
	}).Info("Node created")

	return &node, nil
}

// Register adds an observer. It must be called before Run.
func (n *Node) Register(o Observer) {
	n.observers = append(n.observers, o)
}

// RunAsync calls Run in a separate goroutine that Shutdown waits for
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	n.GoFunc(n.Run)
}

// Run opens the first finality round and runs the worker loop until Shutdown.
// Slot ticks and inbound messages are processed one at a time.
func (n *Node) Run() {
	n.coreLock.Lock()
	if !n.Transition(state.Initialised, state.Running) {
		n.coreLock.Unlock()
		return
	}
	n.startGadget()
	n.coreLock.Unlock()

	n.trans.Listen()
	n.GoFunc(n.ticker.Run)

	tickCh := n.ticker.C()

	for {
		select {
		case s := <-tickCh:
			n.process(func() { n.onSlot(s) })
		case msg := <-n.netCh:
			n.process(func() { n.onMessage(msg) })
		case <-n.shutdownCh:
			return
		}
	}
}

// process runs f under the core lock unless the node has been shut down.
func (n *Node) process(f func()) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.GetState() == state.Shutdown {
		return
	}
	f()
}

func (n *Node) startGadget() {
	current := n.slotClock.CurrentSlot()
	atomic.StoreUint64(&n.slot, current)
	n.handleOutcome(n.gadget.Start(current))
}

// onSlot handles a slot tick: production first, so that a round opened by a
// timeout in the same slot can target the new block.
func (n *Node) onSlot(s uint64) {
	atomic.StoreUint64(&n.slot, s)

	if n.conf.Roles.BlockAuthor {
		if err := n.produce(s); err != nil {
			n.logger.WithError(err).WithField("slot", s).Warn("Block production failed")
		}
	}

	n.handleOutcome(n.gadget.Tick(s))

	n.retrySync()

	n.logStats()
}

// produce builds, imports and broadcasts a block if the local author is
// scheduled for the slot.
func (n *Node) produce(s uint64) error {
	if !n.directory.IsScheduled(n.validator.ID(), s) {
		return nil
	}

	if current := n.slotClock.CurrentSlot(); current != s {
		err := fmt.Errorf("%w: tick for slot %d in slot %d", ErrClockSkew, s, current)
		n.emit(Event{Type: ProductionFailed, Slot: s, Err: err})
		return err
	}

	txs := n.drainTxs()

	best := n.chain.Best()
	block := chain.NewBlock(best, s, n.validator.ID(), txs)
	if err := block.Sign(n.validator.Signer()); err != nil {
		n.requeueTxs(txs)
		n.emit(Event{Type: ProductionFailed, Slot: s, Hash: block.Hex(), Err: err})
		return err
	}

	if err := n.importBlock(block, ""); err != nil {
		n.requeueTxs(txs)
		n.emit(Event{Type: ProductionFailed, Slot: s, Hash: block.Hex(), Err: err})
		return err
	}

	payload, err := net.EncodeBlock(block)
	if err != nil {
		return err
	}
	n.markSeen(net.TopicBlocks, payload)
	n.broadcast(net.TopicBlocks, payload)

	n.logger.WithFields(logrus.Fields{
		"slot":   s,
		"height": block.Height(),
		"block":  block.Hex(),
		"txs":    len(txs),
	}).Info("Produced block")

	n.emit(Event{Type: BlockProduced, Slot: s, Hash: block.Hex(), Height: block.Height(), Block: block})

	return nil
}

// importBlock runs a block through the chain's import pipeline. from is empty
// for blocks produced locally; only network blocks are reported as
// BlockRejected, and a network block with an unknown parent is held until its
// ancestors are fetched.
func (n *Node) importBlock(block *chain.Block, from string) error {
	res, err := n.chain.Import(block)
	if err != nil {
		if from != "" && chain.IsImportErr(err, chain.UnknownParent) {
			n.queueOrphan(block, from, err)
			return err
		}
		if from != "" {
			n.logger.WithFields(logrus.Fields{
				"block": block.Hex(),
				"slot":  block.Slot(),
				"from":  from,
			}).WithError(err).Debug("Rejected block")
			n.emit(Event{
				Type:   BlockRejected,
				Slot:   block.Slot(),
				Hash:   block.Hex(),
				Height: block.Height(),
				From:   from,
				Err:    err,
			})
		}
		return err
	}

	if res == chain.AlreadyKnown {
		return nil
	}

	n.emit(Event{
		Type:   BlockImported,
		Slot:   block.Slot(),
		Hash:   block.Hex(),
		Height: block.Height(),
		Block:  block,
		From:   from,
	})

	n.handleOutcome(n.gadget.OnBlockImported(block.Hex()))

	n.replayOrphans(block.Hex())

	return nil
}

func (n *Node) onMessage(msg net.Message) {
	if !n.markSeen(msg.Topic, msg.Payload) {
		return
	}

	switch msg.Topic {
	case net.TopicBlocks:
		bm, err := net.DecodeBlockMessage(msg.Payload)
		if err != nil {
			n.logger.WithError(err).WithField("from", msg.From).Debug("Bad block payload")
			n.emit(Event{Type: BlockRejected, From: msg.From, Err: err})
			return
		}
		n.onBlockMessage(bm, msg.From)
	case net.TopicFinality:
		fm, err := net.DecodeFinality(msg.Payload)
		if err != nil {
			n.logger.WithError(err).WithField("from", msg.From).Debug("Bad finality payload")
			n.emit(Event{Type: VoteRejected, From: msg.From, Err: err})
			return
		}
		switch fm.Type {
		case net.VoteMessage:
			n.handleVote(fm.Vote, msg.From)
		case net.NotificationMessage:
			n.handleOutcome(n.gadget.HandleNotification(fm.Notification))
		}
	default:
		n.logger.WithFields(logrus.Fields{
			"topic": msg.Topic,
			"from":  msg.From,
		}).Debug("Unknown topic")
	}
}

func (n *Node) handleVote(v *finality.Vote, from string) {
	out, err := n.gadget.HandleVote(v)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"vote": v,
			"from": from,
		}).WithError(err).Debug("Rejected vote")
		n.emit(Event{
			Type:  VoteRejected,
			Round: v.Round,
			Hash:  v.BlockHash,
			From:  from,
			Err:   err,
		})
		return
	}
	n.handleOutcome(out)
}

// handleOutcome broadcasts what the gadget produced and reports closed rounds
// and finalization.
func (n *Node) handleOutcome(out *finality.Outcome) {
	for _, v := range out.Votes {
		payload, err := net.EncodeVote(v)
		if err != nil {
			n.logger.WithError(err).Error("Encoding vote")
			continue
		}
		n.markSeen(net.TopicFinality, payload)
		n.broadcast(net.TopicFinality, payload)
	}

	if n.conf.Roles.BroadcastsFinality() {
		for _, fn := range out.Notifications {
			n.broadcastNotification(fn)
		}

		if out.Relay != nil {
			n.broadcastNotification(out.Relay)
			n.emit(Event{
				Type:   FinalityRelayed,
				Round:  out.Relay.Round,
				Hash:   out.Relay.Hash,
				Height: out.Relay.Height,
			})
		}
	}

	for _, c := range out.Closed {
		n.emit(Event{
			Type:      RoundClosed,
			Round:     c.Number,
			Hash:      c.Target,
			Finalized: c.Finalized,
		})
	}

	n.checkFinalized()
}

func (n *Node) broadcastNotification(fn *finality.Notification) {
	payload, err := net.EncodeNotification(fn)
	if err != nil {
		n.logger.WithError(err).Error("Encoding notification")
		return
	}
	n.markSeen(net.TopicFinality, payload)
	n.broadcast(net.TopicFinality, payload)
}

// checkFinalized emits a Finalized event when the finalized head has moved.
func (n *Node) checkFinalized() {
	fin := n.chain.Finalized()
	if fin.Hex() == n.lastFinalized {
		return
	}
	n.lastFinalized = fin.Hex()

	if pruned := n.orphans.prune(fin.Height()); pruned > 0 {
		n.logger.WithField("pruned", pruned).Debug("Dropped orphans below the finalized head")
	}

	n.emit(Event{
		Type:   Finalized,
		Hash:   fin.Hex(),
		Height: fin.Height(),
		Block:  fin,
	})
}

func (n *Node) broadcast(topic string, payload []byte) {
	if err := n.trans.Broadcast(topic, payload); err != nil {
		n.logger.WithError(err).WithField("topic", topic).Debug("Broadcast failed")
	}
}

// markSeen records a payload and reports whether it was new.
func (n *Node) markSeen(topic string, payload []byte) bool {
	data := make([]byte, 0, len(topic)+len(payload))
	data = append(data, topic...)
	data = append(data, payload...)
	key := string(crypto.SHA256(data))

	seen, _ := n.seen.ContainsOrAdd(key, struct{}{})
	return !seen
}

func (n *Node) currentSlot() uint64 {
	return atomic.LoadUint64(&n.slot)
}

func (n *Node) emit(e Event) {
	if e.Slot == 0 {
		e.Slot = n.currentSlot()
	}

	atomic.AddUint64(&n.counters[e.Type], 1)

	for _, o := range n.observers {
		o.OnEvent(e)
	}
}

// SubmitTx queues an opaque transaction for the next block produced locally.
func (n *Node) SubmitTx(tx []byte) error {
	n.txLock.Lock()
	defer n.txLock.Unlock()

	if len(n.txPool) >= n.conf.TxPoolSize {
		return ErrTxPoolFull
	}
	n.txPool = append(n.txPool, tx)
	return nil
}

func (n *Node) drainTxs() [][]byte {
	n.txLock.Lock()
	defer n.txLock.Unlock()

	count := len(n.txPool)
	if n.conf.MaxBlockTxs > 0 && count > n.conf.MaxBlockTxs {
		count = n.conf.MaxBlockTxs
	}

	txs := n.txPool[:count:count]
	n.txPool = n.txPool[count:]

	if len(txs) == 0 {
		return nil
	}
	return txs
}

func (n *Node) requeueTxs(txs [][]byte) {
	if len(txs) == 0 {
		return
	}

	n.txLock.Lock()
	defer n.txLock.Unlock()

	pool := make([][]byte, 0, len(txs)+len(n.txPool))
	pool = append(pool, txs...)
	pool = append(pool, n.txPool...)
	n.txPool = pool
}

// Shutdown stops the worker loop and the ticker, waits for them, then closes
// the transport and the store.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.SetState(state.Shutdown)
		close(n.shutdownCh)
		n.ticker.Shutdown()

		// wait for a slot or message being processed
		n.coreLock.Lock()
		n.coreLock.Unlock()

		n.WaitRoutines()

		n.trans.Close()
		n.store.Close()
	})
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	head := n.chain.Head()

	count := func(t EventType) string {
		return strconv.FormatUint(atomic.LoadUint64(&n.counters[t]), 10)
	}

	n.txLock.Lock()
	txPool := len(n.txPool)
	n.txLock.Unlock()

	s := map[string]string{
		"id":               n.validator.ID(),
		"moniker":          n.validator.Moniker,
		"state":            n.GetState().String(),
		"mode":             n.conf.Roles.Mode(),
		"slot":             strconv.FormatUint(atomic.LoadUint64(&n.slot), 10),
		"best_height":      strconv.FormatUint(head.Best.Height(), 10),
		"best_hash":        head.Best.Hex(),
		"finalized_height": strconv.FormatUint(head.Finalized.Height(), 10),
		"finalized_hash":   head.Finalized.Hex(),
		"blocks":           strconv.Itoa(n.chain.Len()),
		"tx_pool":          strconv.Itoa(txPool),
		"produced":         count(BlockProduced),
		"imported":         count(BlockImported),
		"rejected_blocks":  count(BlockRejected),
		"rejected_votes":   count(VoteRejected),
		"rounds_closed":    count(RoundClosed),
		"finalizations":    count(Finalized),
		"relayed":          count(FinalityRelayed),
		"orphaned":         count(BlockOrphaned),
		"held_finality":    strconv.Itoa(n.gadget.Held()),
		"uptime":           time.Since(n.start).Truncate(time.Second).String(),
	}

	if round, ok := n.gadget.Round(); ok {
		s["round"] = strconv.FormatUint(round.Number, 10)
		s["round_target_height"] = strconv.FormatUint(round.TargetHeight, 10)
		s["round_votes"] = strconv.Itoa(round.TargetVotes)
	}

	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"slot":             stats["slot"],
		"best_height":      stats["best_height"],
		"finalized_height": stats["finalized_height"],
		"round":            stats["round"],
		"round_votes":      stats["round_votes"],
		"blocks":           stats["blocks"],
		"tx_pool":          stats["tx_pool"],
		"state":            stats["state"],
	}).Debug("Stats")
}

// ID returns the identity of the local node
func (n *Node) ID() string {
	return n.validator.ID()
}

// GetHead returns the best and finalized heads
func (n *Node) GetHead() chain.Head {
	return n.chain.Head()
}

// GetBlock returns a block by hash
func (n *Node) GetBlock(hash string) (*chain.Block, error) {
	return n.chain.GetBlock(hash)
}

// GetRound returns a summary of the current finality round
func (n *Node) GetRound() (finality.RoundInfo, bool) {
	return n.gadget.Round()
}

// GetDirectory returns the authority directory
func (n *Node) GetDirectory() *authority.Directory {
	return n.directory
}

// GetRoles returns the roles of the node
func (n *Node) GetRoles() Roles {
	return n.conf.Roles
}
