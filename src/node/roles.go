package node

import (
	"fmt"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/finality"
)

// Roles are the behaviours enabled on a node. They are fixed at startup.
type Roles struct {
	// BlockAuthor nodes produce blocks in the slots scheduled to them.
	BlockAuthor bool
	// FinalityVoter nodes cast a vote in every finality round.
	FinalityVoter bool
	// RelayOnly nodes neither produce nor vote; they re-broadcast finality
	// notifications.
	RelayOnly bool
}

// Validate checks that the flags can be combined and that the local identity
// is listed for the roles it claims.
func (r Roles) Validate(directory *authority.Directory, id string) error {
	if r.RelayOnly && (r.BlockAuthor || r.FinalityVoter) {
		return fmt.Errorf("relay-finality-only cannot be combined with block-author or finality-voter")
	}

	if r.BlockAuthor && !directory.IsAuthor(id) {
		return fmt.Errorf("%s is not in the author list", id)
	}

	if r.FinalityVoter && !directory.IsVoter(id) {
		return fmt.Errorf("%s is not in the finality voter list", id)
	}

	return nil
}

// GadgetState is the finality gadget state for these roles.
func (r Roles) GadgetState() finality.State {
	if r.FinalityVoter {
		return finality.Voting
	}
	return finality.Idle
}

// BroadcastsFinality reports whether the node sends finality notifications
// and relays those it receives. Observers only listen.
func (r Roles) BroadcastsFinality() bool {
	return r.BlockAuthor || r.FinalityVoter || r.RelayOnly
}

// Mode is a short description of the roles.
func (r Roles) Mode() string {
	switch {
	case r.BlockAuthor && r.FinalityVoter:
		return "author+voter"
	case r.BlockAuthor:
		return "author"
	case r.FinalityVoter:
		return "voter"
	case r.RelayOnly:
		return "relay"
	default:
		return "observer"
	}
}
