// Package finality implements the quorum voting gadget that finalizes blocks
// produced by the slot scheduler.
//
// The gadget runs numbered rounds one after the other. Each round fixes a
// target, the best head of the chain when the round opens, and never changes
// it. A Voting gadget signs a vote for the target as soon as the round opens;
// an Idle gadget only counts the votes of others. When more than two thirds
// of the finality voters have voted for the target, the target is finalized,
// competing branches are pruned and the next round opens. A round that does
// not reach quorum before its deadline slot is closed without finalizing
// anything and the next round opens on the then current best head.
//
// The gadget performs no I/O. Every entry point returns an Outcome listing
// the votes to broadcast, the finalizations reached, and the notifications to
// relay, and the caller decides what to send where.
package finality
