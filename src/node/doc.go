// Package node implements the reactive component of a tandem node.
//
// A Node runs a single worker loop fed by two sources: the slot ticker and
// the inbound messages of the transport. Everything that touches the chain or
// the finality gadget happens in that loop, under the core lock, one event at
// a time.
//
// On every slot tick, a node with the block-author role checks whether it is
// the scheduled author (authors[slot mod n]). If so it drains the transaction
// pool into a new block on top of the best head, signs it, imports it locally
// and broadcasts it on the block topic. The gadget is then ticked, which may
// close a round that reached its deadline and open the next one.
//
// Blocks received from the network go through the chain's import pipeline and
// are reported to the gadget once stored. Messages on the finality topic are
// either votes, which are tallied by voting nodes, or notifications, which let
// non-voting nodes follow the finalized head. Which of these a node sends is
// fixed by its Roles:
//
//	block-author          produces blocks, relays notifications
//	finality-voter        votes and sends notifications
//	relay-finality-only   only relays notifications
//	no role               observes, sends nothing
//
// A block whose parent is unknown is held in an orphan pool while the node
// asks its peers for the parent. Any peer holding it answers with the parent
// and some of its ancestors, on the block topic, whatever its roles. The
// orphans are imported as soon as their parent is, so a node that missed a
// block, or restarted with an empty store, catches up with the chain.
//
// Identical payloads are processed once, using an LRU cache of message
// digests, which also stops notifications from circulating between relays.
//
// Observers registered before Run receive an Event for every block produced,
// imported, orphaned or rejected, every rejected vote, closed round and
// finalization.
package node
