package finality

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

// State is the participation mode of a gadget. It is fixed at construction.
type State uint32

const (
	// Idle gadgets count votes and relay notifications but never vote.
	Idle State = iota
	// Voting gadgets also cast a vote in every round.
	Voting
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Voting:
		return "Voting"
	default:
		return "Unknown"
	}
}

// Default configuration values.
const (
	DefaultRoundTimeout    = 4
	DefaultMaxFutureRounds = 3
)

// maxHeldNotifications bounds the notifications an idle gadget holds for
// blocks it has not imported yet.
const maxHeldNotifications = 16

// Config ...
type Config struct {
	// RoundTimeout is the number of slots a round stays open without quorum.
	RoundTimeout uint64
	// MaxFutureRounds is how many rounds ahead of the current one votes are
	// buffered.
	MaxFutureRounds uint64
	Logger          *logrus.Entry
}

// Chain is the part of the block store the gadget reads and finalizes.
type Chain interface {
	Best() *chain.Block
	Finalized() *chain.Block
	GetBlock(hash string) (*chain.Block, error)
	Finalize(hash string) (int, error)
}

// Gadget runs the finality rounds. All methods are safe for concurrent use;
// rounds are processed one at a time under the gadget's lock.
type Gadget struct {
	mu sync.Mutex

	state     State
	directory *authority.Directory
	chain     Chain
	signer    keys.Signer
	verifier  keys.Verifier
	conf      Config

	round   *Round
	slot    uint64
	pending map[uint64]map[string]*Vote // round => voter => vote

	held map[string]*Notification // block hash => notification

	logger *logrus.Entry
}

// NewGadget creates a gadget. A Voting gadget needs a signer whose identity
// is in the directory's voter list.
func NewGadget(
	state State,
	directory *authority.Directory,
	c Chain,
	signer keys.Signer,
	verifier keys.Verifier,
	conf Config,
) (*Gadget, error) {
	if state == Voting {
		if signer == nil {
			return nil, fmt.Errorf("voting gadget requires a signer")
		}
		if !directory.IsVoter(signer.ID()) {
			return nil, fmt.Errorf("%s is not a finality voter", signer.ID())
		}
	}

	if conf.RoundTimeout == 0 {
		conf.RoundTimeout = DefaultRoundTimeout
	}

	logger := conf.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Gadget{
		state:     state,
		directory: directory,
		chain:     c,
		signer:    signer,
		verifier:  verifier,
		conf:      conf,
		pending:   make(map[uint64]map[string]*Vote),
		held:      make(map[string]*Notification),
		logger:    logger,
	}, nil
}

// Start opens round 0 targeting the current best head. Later calls do
// nothing.
func (g *Gadget) Start(slot uint64) *Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := &Outcome{}
	if g.round != nil {
		return out
	}

	g.slot = slot
	g.openRound(0, out)

	return out
}

// Tick advances the gadget's notion of the current slot and closes the round
// if its deadline has been reached.
func (g *Gadget) Tick(slot uint64) *Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := &Outcome{}

	if slot > g.slot {
		g.slot = slot
	}

	if g.round == nil || g.slot < g.round.Deadline {
		return out
	}

	g.logger.WithFields(logrus.Fields{
		"round":  g.round.Number,
		"target": g.round.TargetHeight,
		"votes":  g.round.TargetVotes(),
		"slot":   g.slot,
	}).Info("Round timed out")

	g.closeRound(false, out)

	return out
}

// HandleVote validates a vote and counts it. Votes for the next few rounds are
// checked and held until their round opens.
func (g *Gadget) HandleVote(v *Vote) (*Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.round == nil {
		return nil, ErrNotStarted
	}

	if v.Round < g.round.Number {
		return nil, NewVoteErr(StaleRound, v)
	}

	if !g.directory.IsVoter(v.Voter) {
		return nil, NewVoteErr(UnknownVoter, v)
	}

	if !v.Verify(g.verifier) {
		return nil, NewVoteErr(BadVoteSignature, v)
	}

	out := &Outcome{}

	if v.Round > g.round.Number {
		if v.Round-g.round.Number > g.conf.MaxFutureRounds {
			return nil, NewVoteErr(FutureRound, v)
		}
		return out, g.buffer(v)
	}

	if err := g.round.add(v); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"round":  v.Round,
		"voter":  v.Voter,
		"block":  v.BlockHash,
		"tally":  g.round.TargetVotes(),
		"quorum": g.directory.SuperMajority(),
	}).Debug("Counted vote")

	g.checkQuorum(out)

	return out, nil
}

// HandleNotification processes a finality notification received from the
// network. Voting gadgets rely on their own tally and ignore it. Idle gadgets
// trust it: the finalized head moves to the notified block, or as soon as that
// block is imported. Only a notification that moved the finalized head is
// returned for relay.
func (g *Gadget) HandleNotification(n *Notification) *Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := &Outcome{}

	if g.state == Voting {
		return out
	}

	if n.Height <= g.chain.Finalized().Height() {
		return out
	}

	if _, err := g.chain.GetBlock(n.Hash); err != nil {
		g.hold(n)
		return out
	}

	if g.applyNotification(n) {
		out.Relay = n
	}

	return out
}

// OnBlockImported applies a held notification once its block is known. The
// notification is returned for relay if it moved the finalized head.
func (g *Gadget) OnBlockImported(hash string) *Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := &Outcome{}

	n, ok := g.held[hash]
	if !ok {
		return out
	}
	delete(g.held, hash)

	if n.Height > g.chain.Finalized().Height() && g.applyNotification(n) {
		out.Relay = n
	}

	return out
}

// hold keeps a notification for an unknown block. When full, the lowest
// notification gives way to a higher one. Callers hold the lock.
func (g *Gadget) hold(n *Notification) {
	if _, ok := g.held[n.Hash]; ok {
		return
	}

	if len(g.held) >= maxHeldNotifications {
		var lowest *Notification
		for _, h := range g.held {
			if lowest == nil || h.Height < lowest.Height {
				lowest = h
			}
		}
		if lowest.Height >= n.Height {
			return
		}
		delete(g.held, lowest.Hash)
	}

	g.logger.WithFields(logrus.Fields{
		"block":  n.Hash,
		"height": n.Height,
		"held":   len(g.held) + 1,
	}).Debug("Holding notification for unknown block")

	g.held[n.Hash] = n
}

// applyNotification finalizes the notified block and drops the held
// notifications that are no longer above the finalized head. Callers hold the
// lock.
func (g *Gadget) applyNotification(n *Notification) bool {
	if _, err := g.chain.Finalize(n.Hash); err != nil {
		g.logger.WithError(err).WithField("block", n.Hash).Warn("Cannot apply finality notification")
		return false
	}

	finalized := g.chain.Finalized().Height()
	for hash, h := range g.held {
		if h.Height <= finalized {
			delete(g.held, hash)
		}
	}

	g.logger.WithFields(logrus.Fields{
		"height": n.Height,
		"block":  n.Hash,
		"round":  n.Round,
	}).Info("Finalized block from notification")

	return true
}

// Held returns the number of notifications waiting for their block.
func (g *Gadget) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// State ...
func (g *Gadget) State() State {
	return g.state
}

// Round returns a summary of the current round.
func (g *Gadget) Round() (RoundInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.round == nil {
		return RoundInfo{}, false
	}
	return g.round.info(), true
}

// openRound starts round number on the current best head, casts the local
// vote, and replays buffered votes. Callers hold the lock.
func (g *Gadget) openRound(number uint64, out *Outcome) {
	best := g.chain.Best()
	g.round = newRound(number, best.Hex(), best.Height(), g.slot, g.conf.RoundTimeout)

	g.logger.WithFields(logrus.Fields{
		"round":    number,
		"target":   best.Height(),
		"deadline": g.round.Deadline,
	}).Debug("Opened round")

	if g.state == Voting {
		vote := &Vote{
			Round:     number,
			BlockHash: g.round.Target,
		}
		if err := vote.Sign(g.signer); err != nil {
			g.logger.WithError(err).Error("Signing vote")
		} else {
			g.round.votes[vote.Voter] = vote
			out.Votes = append(out.Votes, vote)
		}
	}

	for _, v := range g.takePending(number) {
		if err := g.round.add(v); err != nil {
			g.logger.WithError(err).Debug("Dropping buffered vote")
		}
	}

	g.checkQuorum(out)
}

// checkQuorum finalizes the target when it has a quorum of votes. A target
// that is already final does not end the round; the round waits for its
// deadline so that a stalled chain does not spin through rounds.
func (g *Gadget) checkQuorum(out *Outcome) {
	r := g.round

	if !g.directory.HasQuorum(r.TargetVotes()) {
		return
	}

	if r.TargetHeight <= g.chain.Finalized().Height() {
		return
	}

	if _, err := g.chain.Finalize(r.Target); err != nil {
		g.logger.WithError(err).WithField("round", r.Number).Warn("Cannot finalize round target")
		return
	}

	g.logger.WithFields(logrus.Fields{
		"round":  r.Number,
		"height": r.TargetHeight,
		"block":  r.Target,
		"votes":  r.TargetVotes(),
	}).Info("Finalized block")

	out.Notifications = append(out.Notifications, &Notification{
		Round:  r.Number,
		Hash:   r.Target,
		Height: r.TargetHeight,
	})

	g.closeRound(true, out)
}

func (g *Gadget) closeRound(finalized bool, out *Outcome) {
	r := g.round
	out.Closed = append(out.Closed, RoundClose{
		Number:    r.Number,
		Target:    r.Target,
		Finalized: finalized,
	})
	g.openRound(r.Number+1, out)
}

func (g *Gadget) buffer(v *Vote) error {
	votes, ok := g.pending[v.Round]
	if !ok {
		votes = make(map[string]*Vote)
		g.pending[v.Round] = votes
	}

	if prev, ok := votes[v.Voter]; ok {
		if prev.BlockHash == v.BlockHash {
			return NewVoteErr(DuplicateVote, v)
		}
		return NewVoteErr(VoteEquivocation, v)
	}

	votes[v.Voter] = v
	return nil
}

// takePending removes the votes buffered for round and discards those of
// earlier rounds. Votes are returned in voter order.
func (g *Gadget) takePending(round uint64) []*Vote {
	res := []*Vote{}

	for r, votes := range g.pending {
		if r > round {
			continue
		}
		if r == round {
			for _, v := range votes {
				res = append(res, v)
			}
		}
		delete(g.pending, r)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Voter < res[j].Voter
	})

	return res
}
