package chain

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

// ImportResult tells a successful import apart from a no-op.
type ImportResult uint8

const (
	// Imported means the block was validated and inserted.
	Imported ImportResult = iota
	// AlreadyKnown means the block was in the arena already. Nothing changed.
	AlreadyKnown
	// Rejected accompanies an ImportErr.
	Rejected
)

// String ...
func (r ImportResult) String() string {
	switch r {
	case Imported:
		return "Imported"
	case AlreadyKnown:
		return "AlreadyKnown"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Head is a consistent snapshot of the two chain pointers.
type Head struct {
	Best      *Block
	Finalized *Block
}

type slotKey struct {
	author string
	slot   uint64
}

// Chain is the block arena. All mutations go through Import and Finalize,
// which take the write lock; Head is served from an atomic snapshot
// refreshed at the end of every mutation.
type Chain struct {
	mu sync.RWMutex

	directory *authority.Directory
	verifier  keys.Verifier
	store     Store

	blocks    map[string]*Block  // hash => Block
	bySlot    map[slotKey]string // author and slot => hash
	genesis   string
	best      string
	finalized string

	head atomic.Pointer[Head]

	logger *logrus.Entry
}

// NewChain creates a Chain rooted at genesis. If the store needs bootstrapping,
// its blocks and finalized pointer are loaded into the arena instead, and the
// stored genesis must match.
func NewChain(
	genesis *Block,
	directory *authority.Directory,
	verifier keys.Verifier,
	store Store,
	logger *logrus.Entry,
) (*Chain, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	c := &Chain{
		directory: directory,
		verifier:  verifier,
		store:     store,
		blocks:    make(map[string]*Block),
		bySlot:    make(map[slotKey]string),
		genesis:   genesis.Hex(),
		best:      genesis.Hex(),
		finalized: genesis.Hex(),
		logger:    logger,
	}

	c.blocks[c.genesis] = genesis

	if store.NeedBootstrap() {
		if err := c.bootstrap(); err != nil {
			return nil, err
		}
	} else {
		if err := store.SetBlock(genesis); err != nil {
			return nil, err
		}
		if err := store.SetFinalized(c.genesis); err != nil {
			return nil, err
		}
	}

	c.publish()

	return c, nil
}

// bootstrap rebuilds the arena from the store. Blocks are inserted by height
// so parents always come first; blocks whose parent is missing are skipped.
func (c *Chain) bootstrap() error {
	blocks, err := c.store.Blocks()
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		if err := c.store.SetBlock(c.blocks[c.genesis]); err != nil {
			return err
		}
		return c.store.SetFinalized(c.genesis)
	}

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Height() == blocks[j].Height() {
			return blocks[i].Hex() < blocks[j].Hex()
		}
		return blocks[i].Height() < blocks[j].Height()
	})

	if blocks[0].Hex() != c.genesis {
		return fmt.Errorf("stored genesis %s does not match configured genesis %s", blocks[0].Hex(), c.genesis)
	}

	for _, b := range blocks[1:] {
		if _, ok := c.blocks[b.ParentHash()]; !ok {
			c.logger.WithField("block", b.Hex()).Warn("Skipping stored block with unknown parent")
			continue
		}
		c.insert(b)
	}

	finalized, err := c.store.GetFinalized()
	if err == nil {
		if _, ok := c.blocks[finalized]; ok {
			c.finalized = finalized
		}
	} else if !common.IsStore(err, common.Empty) {
		return err
	}

	c.forkChoice()

	c.logger.WithFields(logrus.Fields{
		"blocks":    len(c.blocks),
		"best":      c.blocks[c.best].Height(),
		"finalized": c.blocks[c.finalized].Height(),
	}).Info("Bootstrapped chain from store")

	return nil
}

// Import validates a block and inserts it, then re-runs fork choice.
// Re-importing a known block is a no-op that returns AlreadyKnown. Rejections
// are ImportErr values.
func (c *Chain) Import(block *Block) (ImportResult, error) {
	hash := block.Hex()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.blocks[hash]; ok {
		return AlreadyKnown, nil
	}

	if err := c.validate(block, hash); err != nil {
		return Rejected, err
	}

	if err := c.store.SetBlock(block); err != nil {
		return Rejected, err
	}

	c.insert(block)

	prevBest := c.best
	c.forkChoice()
	c.publish()

	c.logger.WithFields(logrus.Fields{
		"block":  hash,
		"height": block.Height(),
		"slot":   block.Slot(),
		"author": block.Author(),
		"reorg":  prevBest != block.ParentHash() && c.best != prevBest,
		"best":   c.blocks[c.best].Height(),
	}).Debug("Imported block")

	return Imported, nil
}

func (c *Chain) validate(block *Block, hash string) error {
	parent, ok := c.blocks[block.ParentHash()]
	if !ok {
		return NewImportErr(UnknownParent, hash, fmt.Sprintf("parent %s not found", block.ParentHash()))
	}

	if block.Height() != parent.Height()+1 {
		return NewImportErr(BadHeight, hash, fmt.Sprintf("height %d, parent height %d", block.Height(), parent.Height()))
	}

	if block.Slot() <= parent.Slot() {
		return NewImportErr(StaleSlot, hash, fmt.Sprintf("slot %d, parent slot %d", block.Slot(), parent.Slot()))
	}

	if !c.directory.IsScheduled(block.Author(), block.Slot()) {
		return NewImportErr(WrongAuthor, hash, fmt.Sprintf("slot %d belongs to %s", block.Slot(), c.directory.ScheduledAuthor(block.Slot()).PubKeyHex))
	}

	if !block.Verify(c.verifier) {
		return NewImportErr(BadSignature, hash, "signature does not verify")
	}

	if !block.BodyMatches() {
		return NewImportErr(BadBody, hash, "body does not match body hash")
	}

	if other, ok := c.bySlot[slotKey{block.Author(), block.Slot()}]; ok {
		return NewImportErr(Equivocation, hash, fmt.Sprintf("author already produced %s in slot %d", other, block.Slot()))
	}

	if !c.descends(parent.Hex(), c.finalized) {
		return NewImportErr(FinalityConflict, hash, fmt.Sprintf("parent %s does not descend from finalized %s", parent.Hex(), c.finalized))
	}

	return nil
}

func (c *Chain) insert(block *Block) {
	hash := block.Hex()
	c.blocks[hash] = block
	c.bySlot[slotKey{block.Author(), block.Slot()}] = hash
}

// descends reports whether hash is ancestor equal or a descendant of ancestor.
func (c *Chain) descends(hash string, ancestor string) bool {
	anc, ok := c.blocks[ancestor]
	if !ok {
		return false
	}

	cur, ok := c.blocks[hash]
	for ok && cur.Height() > anc.Height() {
		cur, ok = c.blocks[cur.ParentHash()]
	}

	return ok && cur.Hex() == ancestor
}

// forkChoice points best at the highest block descending from the finalized
// head, breaking ties by lowest hash.
func (c *Chain) forkChoice() {
	bestHash := c.finalized
	bestHeight := c.blocks[c.finalized].Height()

	for hash, b := range c.blocks {
		h := b.Height()
		if h < bestHeight || (h == bestHeight && hash >= bestHash) {
			continue
		}
		if !c.descends(hash, c.finalized) {
			continue
		}
		bestHash, bestHeight = hash, h
	}

	c.best = bestHash
}

// Finalize moves the finalized head forward to hash, prunes every block that
// is neither an ancestor nor a descendant of it, and re-runs fork choice. It
// returns the number of pruned blocks. Finalizing the current finalized head
// is a no-op.
func (c *Chain) Finalize(hash string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, ok := c.blocks[hash]
	if !ok {
		return 0, common.NewStoreErr("Block", common.KeyNotFound, hash)
	}

	if hash == c.finalized {
		return 0, nil
	}

	if !c.descends(hash, c.finalized) {
		return 0, fmt.Errorf("finalize %s: %w", hash, ErrNotDescendant)
	}

	if err := c.store.SetFinalized(hash); err != nil {
		return 0, err
	}

	oldHeight := c.blocks[c.finalized].Height()
	c.finalized = hash

	// The chain between the old and new finalized heads survives, so do the
	// descendants of the new head. Everything else above the old head goes.
	keep := make(map[string]bool)
	for cur := target; cur.Height() > oldHeight; cur = c.blocks[cur.ParentHash()] {
		keep[cur.Hex()] = true
	}

	pruned := 0
	for h, b := range c.blocks {
		if b.Height() <= oldHeight || keep[h] {
			continue
		}
		if b.Height() > target.Height() && c.descends(h, hash) {
			continue
		}
		delete(c.blocks, h)
		delete(c.bySlot, slotKey{b.Author(), b.Slot()})
		if err := c.store.DeleteBlock(h); err != nil {
			c.logger.WithError(err).WithField("block", h).Error("Deleting pruned block")
		}
		pruned++
	}

	c.forkChoice()
	c.publish()

	c.logger.WithFields(logrus.Fields{
		"finalized": hash,
		"height":    target.Height(),
		"pruned":    pruned,
		"best":      c.blocks[c.best].Height(),
	}).Debug("Finalized block")

	return pruned, nil
}

// publish refreshes the atomic head snapshot. Callers hold the write lock.
func (c *Chain) publish() {
	c.head.Store(&Head{
		Best:      c.blocks[c.best],
		Finalized: c.blocks[c.finalized],
	})
}

// Head returns a consistent snapshot of the best and finalized heads without
// taking the lock.
func (c *Chain) Head() Head {
	return *c.head.Load()
}

// Best returns the best head.
func (c *Chain) Best() *Block {
	return c.head.Load().Best
}

// Finalized returns the finalized head.
func (c *Chain) Finalized() *Block {
	return c.head.Load().Finalized
}

// Genesis ...
func (c *Chain) Genesis() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.genesis]
}

// GetBlock returns a block of the arena.
func (c *Chain) GetBlock(hash string) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	block, ok := c.blocks[hash]
	if !ok {
		return nil, common.NewStoreErr("Block", common.KeyNotFound, hash)
	}
	return block, nil
}

// Contains ...
func (c *Chain) Contains(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocks[hash]
	return ok
}

// IsDescendant reports whether hash is ancestor itself or one of its
// descendants.
func (c *Chain) IsDescendant(hash string, ancestor string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descends(hash, ancestor)
}

// Len returns the number of blocks in the arena.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Leaves returns the hashes of blocks without children, sorted.
func (c *Chain) Leaves() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasChild := make(map[string]bool)
	for _, b := range c.blocks {
		hasChild[b.ParentHash()] = true
	}

	res := []string{}
	for h := range c.blocks {
		if !hasChild[h] {
			res = append(res, h)
		}
	}
	sort.Strings(res)
	return res
}

// Directory returns the authority directory blocks are checked against.
func (c *Chain) Directory() *authority.Directory {
	return c.directory
}
