package node

import (
	"sort"

	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/net"
	"github.com/sirupsen/logrus"
)

type orphan struct {
	block *chain.Block
	from  string
}

// orphanPool holds blocks whose parent is unknown, keyed by parent hash, until
// the parent is imported.
type orphanPool struct {
	size     int
	byParent map[string][]orphan
	hashes   map[string]string // hash => parent hash
}

func newOrphanPool(size int) *orphanPool {
	return &orphanPool{
		size:     size,
		byParent: make(map[string][]orphan),
		hashes:   make(map[string]string),
	}
}

// add holds a block. It returns false if the pool is full.
func (p *orphanPool) add(block *chain.Block, from string) bool {
	hash := block.Hex()
	if _, ok := p.hashes[hash]; ok {
		return true
	}
	if len(p.hashes) >= p.size {
		return false
	}

	parent := block.ParentHash()
	p.byParent[parent] = append(p.byParent[parent], orphan{block, from})
	p.hashes[hash] = parent
	return true
}

func (p *orphanPool) contains(hash string) bool {
	_, ok := p.hashes[hash]
	return ok
}

// take removes and returns the children of parent.
func (p *orphanPool) take(parent string) []orphan {
	children := p.byParent[parent]
	delete(p.byParent, parent)
	for _, o := range children {
		delete(p.hashes, o.block.Hex())
	}
	return children
}

// missing returns the parent hashes that are neither known to the pool nor
// held in it, sorted for a stable request order.
func (p *orphanPool) missing() []string {
	res := []string{}
	for parent := range p.byParent {
		if _, ok := p.hashes[parent]; !ok {
			res = append(res, parent)
		}
	}
	sort.Strings(res)
	return res
}

// prune drops the orphans at or below height, and returns how many.
func (p *orphanPool) prune(height uint64) int {
	pruned := 0
	for parent, children := range p.byParent {
		kept := children[:0]
		for _, o := range children {
			if o.block.Height() <= height {
				delete(p.hashes, o.block.Hex())
				pruned++
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(p.byParent, parent)
		} else {
			p.byParent[parent] = kept
		}
	}
	return pruned
}

func (p *orphanPool) len() int {
	return len(p.hashes)
}

// queueOrphan holds a network block whose parent is unknown and asks the
// network for the parent, unless the parent is itself waiting in the pool.
func (n *Node) queueOrphan(block *chain.Block, from string, err error) {
	if !n.orphans.add(block, from) {
		n.emit(Event{
			Type:   BlockRejected,
			Slot:   block.Slot(),
			Hash:   block.Hex(),
			Height: block.Height(),
			From:   from,
			Err:    err,
		})
		return
	}

	n.logger.WithFields(logrus.Fields{
		"block":   block.Hex(),
		"height":  block.Height(),
		"parent":  block.ParentHash(),
		"from":    from,
		"orphans": n.orphans.len(),
	}).Debug("Holding orphan block")

	n.emit(Event{
		Type:   BlockOrphaned,
		Slot:   block.Slot(),
		Hash:   block.Hex(),
		Height: block.Height(),
		From:   from,
	})

	if !n.orphans.contains(block.ParentHash()) {
		n.requestBlock(block.ParentHash())
	}
}

// replayOrphans imports the blocks that were waiting for parent.
func (n *Node) replayOrphans(parent string) {
	delete(n.requests, parent)
	for _, o := range n.orphans.take(parent) {
		n.importBlock(o.block, o.from)
	}
}

// requestBlock broadcasts a request for hash and its missing ancestors. A hash
// is requested at most once every SyncRetry slots.
func (n *Node) requestBlock(hash string) {
	current := n.currentSlot()
	if last, ok := n.requests[hash]; ok && current < last+n.conf.SyncRetry {
		return
	}
	n.requests[hash] = current

	n.syncNonce++
	req := &net.BlockRequest{
		Hash:      hash,
		Floor:     n.chain.Finalized().Height(),
		Limit:     n.conf.SyncLimit,
		Requester: n.ID(),
		Nonce:     n.syncNonce,
	}

	payload, err := net.EncodeBlockRequest(req)
	if err != nil {
		n.logger.WithError(err).Error("Encoding block request")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"block": hash,
		"floor": req.Floor,
		"nonce": req.Nonce,
	}).Debug("Requesting block")

	n.markSeen(net.TopicBlocks, payload)
	n.broadcast(net.TopicBlocks, payload)
}

// retrySync requests again the missing parents of the orphan pool, and
// forgets the requests that were answered or pruned.
func (n *Node) retrySync() {
	missing := n.orphans.missing()

	wanted := make(map[string]bool, len(missing))
	for _, hash := range missing {
		wanted[hash] = true
	}
	for hash := range n.requests {
		if !wanted[hash] {
			delete(n.requests, hash)
		}
	}

	for _, hash := range missing {
		n.requestBlock(hash)
	}
}

// answerRequest sends the requested block and its ancestors above the
// requester's floor, oldest first. Nodes that do not have the block stay
// silent.
func (n *Node) answerRequest(req *net.BlockRequest, from string) {
	if req.Requester == n.ID() {
		return
	}

	block, err := n.chain.GetBlock(req.Hash)
	if err != nil {
		return
	}

	limit := n.conf.SyncLimit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	if limit > net.MaxResponseBlocks {
		limit = net.MaxResponseBlocks
	}
	if limit < 1 {
		limit = 1
	}

	blocks := []*chain.Block{block}
	for len(blocks) < limit {
		parent, err := n.chain.GetBlock(blocks[len(blocks)-1].ParentHash())
		if err != nil || parent.IsGenesis() || parent.Height() <= req.Floor {
			break
		}
		blocks = append(blocks, parent)
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	// keep the oldest blocks when the response is too large; the rest is
	// requested again
	var payload []byte
	for {
		payload, err = net.EncodeBlockResponse(req, blocks)
		if err != net.ErrPayloadTooLarge || len(blocks) == 1 {
			break
		}
		blocks = blocks[:len(blocks)/2]
	}
	if err != nil {
		n.logger.WithError(err).WithField("block", req.Hash).Error("Encoding block response")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"block":     req.Hash,
		"requester": req.Requester,
		"from":      from,
		"blocks":    len(blocks),
	}).Debug("Answering block request")

	n.markSeen(net.TopicBlocks, payload)
	n.broadcast(net.TopicBlocks, payload)
}

// onBlockMessage dispatches a decoded blocks topic payload.
func (n *Node) onBlockMessage(msg *net.BlockMessage, from string) {
	switch msg.Type {
	case net.BlockAnnounce, net.BlockResponseMessage:
		for _, b := range msg.Blocks {
			n.importBlock(b, from)
		}
	case net.BlockRequestMessage:
		n.answerRequest(msg.Request, from)
	}
}
