package finality

import (
	"errors"
	"fmt"
)

// VoteErrType enumerates the reasons a vote is rejected.
type VoteErrType uint32

const (
	// UnknownVoter: the voter is not in the finality voter list.
	UnknownVoter VoteErrType = iota
	// DuplicateVote: the voter already cast this exact vote in the round.
	DuplicateVote
	// StaleRound: the vote is for a round that is already closed.
	StaleRound
	// BadVoteSignature: the signature does not verify.
	BadVoteSignature
	// VoteEquivocation: the voter already voted for another block in the
	// round.
	VoteEquivocation
	// FutureRound: the vote is too far ahead of the current round to be
	// buffered.
	FutureRound
)

// String ...
func (t VoteErrType) String() string {
	switch t {
	case UnknownVoter:
		return "UnknownVoter"
	case DuplicateVote:
		return "DuplicateVote"
	case StaleRound:
		return "StaleRound"
	case BadVoteSignature:
		return "BadVoteSignature"
	case VoteEquivocation:
		return "VoteEquivocation"
	case FutureRound:
		return "FutureRound"
	default:
		return "Unknown"
	}
}

// VoteErr is returned when a vote is rejected. Rejected votes are not
// counted.
type VoteErr struct {
	errType VoteErrType
	round   uint64
	voter   string
}

// NewVoteErr ...
func NewVoteErr(errType VoteErrType, vote *Vote) VoteErr {
	return VoteErr{
		errType: errType,
		round:   vote.Round,
		voter:   vote.Voter,
	}
}

// Type ...
func (e VoteErr) Type() VoteErrType {
	return e.errType
}

// Error implements the error interface.
func (e VoteErr) Error() string {
	return fmt.Sprintf("vote round %d, voter %s: %s", e.round, e.voter, e.errType)
}

// IsVoteErr checks that an error is a VoteErr of the given type.
func IsVoteErr(err error, t VoteErrType) bool {
	var voteErr VoteErr
	return errors.As(err, &voteErr) && voteErr.errType == t
}

// ErrNotStarted is returned when messages are handled before Start.
var ErrNotStarted = errors.New("finality gadget not started")
