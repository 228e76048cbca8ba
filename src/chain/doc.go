// Package chain implements the block tree of a tandem node.
//
// Blocks are kept in an arena keyed by hash, each block pointing back to its
// parent by hash. The Chain validates every block before inserting it (parent
// known, slot strictly increasing, scheduled author, valid signature, no
// equivocation) and maintains two pointers into the arena: the best head,
// chosen by fork choice, and the finalized head, moved forward only by the
// finality gadget.
//
// Fork choice is the longest chain rule restricted to descendants of the
// finalized head: the highest block wins and ties go to the lowest hash, so
// every node that knows the same set of blocks agrees on the same head
// whatever order the blocks arrived in.
//
// Finalizing a block prunes every branch that does not contain it. Blocks are
// written through to a Store, either in memory or in a Badger database, and a
// node restarted with --bootstrap rebuilds its arena from the database.
package chain
