package node

import (
	"fmt"

	"github.com/mosaicnetworks/tandem/src/chain"
)

// EventType enumerates the events a Node reports to its observers.
type EventType uint32

const (
	// BlockProduced: the local author sealed, imported and broadcast a block.
	BlockProduced EventType = iota
	// BlockImported: a block was added to the chain.
	BlockImported
	// BlockRejected: a block failed to decode or to import.
	BlockRejected
	// ProductionFailed: the local author could not produce in its slot.
	ProductionFailed
	// VoteRejected: a finality vote failed to decode or was refused.
	VoteRejected
	// RoundClosed: a finality round ended, with or without finalizing.
	RoundClosed
	// Finalized: the finalized head moved.
	Finalized
	// FinalityRelayed: a received notification was re-broadcast.
	FinalityRelayed
	// BlockOrphaned: a block with an unknown parent is held while its
	// ancestors are requested.
	BlockOrphaned

	numEventTypes
)

// String ...
func (t EventType) String() string {
	switch t {
	case BlockProduced:
		return "BlockProduced"
	case BlockImported:
		return "BlockImported"
	case BlockRejected:
		return "BlockRejected"
	case ProductionFailed:
		return "ProductionFailed"
	case VoteRejected:
		return "VoteRejected"
	case RoundClosed:
		return "RoundClosed"
	case Finalized:
		return "Finalized"
	case FinalityRelayed:
		return "FinalityRelayed"
	case BlockOrphaned:
		return "BlockOrphaned"
	default:
		return "Unknown"
	}
}

// Event is an output of the node. Fields that do not apply to the Type are
// left empty.
type Event struct {
	Type EventType

	Slot   uint64
	Hash   string
	Height uint64
	Block  *chain.Block

	Round     uint64
	Finalized bool // RoundClosed only

	From string
	Err  error
}

// String ...
func (e Event) String() string {
	switch e.Type {
	case RoundClosed:
		return fmt.Sprintf("%s{round: %d, target: %s, finalized: %t}", e.Type, e.Round, e.Hash, e.Finalized)
	case BlockRejected, ProductionFailed, VoteRejected:
		return fmt.Sprintf("%s{slot: %d, hash: %s, err: %v}", e.Type, e.Slot, e.Hash, e.Err)
	default:
		return fmt.Sprintf("%s{slot: %d, height: %d, hash: %s}", e.Type, e.Slot, e.Height, e.Hash)
	}
}

// Observer receives node events. OnEvent is called from the node's worker
// loop and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
