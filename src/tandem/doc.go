// Package tandem assembles a node from a config.Config: it reads the
// authority list and the private key from the data directory, opens the block
// store, binds the TCP transport, and starts the node with its HTTP service
// and metrics.
package tandem
