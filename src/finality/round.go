package finality

import "sort"

// Round is one attempt at finalizing a fixed target.
type Round struct {
	Number       uint64
	Target       string
	TargetHeight uint64
	Opened       uint64 // slot
	Deadline     uint64 // slot at which the round times out

	votes map[string]*Vote // voter => vote
}

func newRound(number uint64, target string, targetHeight uint64, opened uint64, timeout uint64) *Round {
	return &Round{
		Number:       number,
		Target:       target,
		TargetHeight: targetHeight,
		Opened:       opened,
		Deadline:     opened + timeout,
		votes:        make(map[string]*Vote),
	}
}

// add records a vote, refusing a second vote from the same voter.
func (r *Round) add(v *Vote) error {
	if prev, ok := r.votes[v.Voter]; ok {
		if prev.BlockHash == v.BlockHash {
			return NewVoteErr(DuplicateVote, v)
		}
		return NewVoteErr(VoteEquivocation, v)
	}
	r.votes[v.Voter] = v
	return nil
}

// TargetVotes counts the distinct voters that voted for the target.
func (r *Round) TargetVotes() int {
	n := 0
	for _, v := range r.votes {
		if v.BlockHash == r.Target {
			n++
		}
	}
	return n
}

// RoundInfo is a read-only summary of a round.
type RoundInfo struct {
	Number       uint64   `json:"number"`
	Target       string   `json:"target"`
	TargetHeight uint64   `json:"target_height"`
	Opened       uint64   `json:"opened"`
	Deadline     uint64   `json:"deadline"`
	Votes        int      `json:"votes"`
	TargetVotes  int      `json:"target_votes"`
	Voters       []string `json:"voters"`
}

func (r *Round) info() RoundInfo {
	voters := make([]string, 0, len(r.votes))
	for id := range r.votes {
		voters = append(voters, id)
	}
	sort.Strings(voters)

	return RoundInfo{
		Number:       r.Number,
		Target:       r.Target,
		TargetHeight: r.TargetHeight,
		Opened:       r.Opened,
		Deadline:     r.Deadline,
		Votes:        len(r.votes),
		TargetVotes:  r.TargetVotes(),
		Voters:       voters,
	}
}

// RoundClose records how a round ended.
type RoundClose struct {
	Number    uint64
	Target    string
	Finalized bool
}

// Outcome lists what the caller has to do after the gadget handled an event.
type Outcome struct {
	// Votes cast by the local voter, to broadcast.
	Votes []*Vote
	// Notifications of blocks finalized by the local tally.
	Notifications []*Notification
	// Relay is a received notification that advanced the local finalized
	// head, to re-broadcast.
	Relay *Notification
	// Closed rounds, in order.
	Closed []RoundClose
}

// Empty reports whether there is nothing to act on.
func (o *Outcome) Empty() bool {
	return len(o.Votes) == 0 && len(o.Notifications) == 0 && o.Relay == nil && len(o.Closed) == 0
}
