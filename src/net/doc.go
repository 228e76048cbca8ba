// Package net implements the gossip transports tandem nodes use to exchange
// blocks and finality messages.
//
// A Transport broadcasts opaque payloads on a topic to every connected peer
// and delivers inbound payloads on a bounded Consumer channel. There are two
// implementations:
//
// - Inmem: in-memory transport used for testing and local simulations
//
// - TCP: a full mesh over plain TCP, one outbound connection per peer
//
// Payloads are produced by the codec in this package: a msgpack encoding of
// the block or finality message, compressed with snappy. The block topic also
// carries the requests and responses nodes use to fetch missing blocks.
//
// TCP
//
// To use the TCP transport, set the following configuration options (cf config
// package):
//
// - listen: the IP:PORT of the TCP socket the node binds to.
//
// - advertise: (optional) the address announced to other nodes. If the listen
// address is not reachable by other peers, set this to the reachable public
// address.
//
// The peers are the net_addr values of authorities.json, or its peers list.
// The local address is skipped.
package net
