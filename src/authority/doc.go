// Package authority defines the identities allowed to take part in consensus.
//
// A tandem network has two static lists of authorities: the ordered list of
// block authors, which determines the round-robin slot schedule, and the list
// of finality voters, whose signed votes finalize blocks. The two lists may
// overlap or be entirely different.
//
// Both lists are loaded once at startup from an authorities.json file in the
// node's data directory and wrapped in an immutable Directory. There is no
// rotation; a different set of authorities is a different network.
package authority
