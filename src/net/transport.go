package net

import "errors"

// Gossip topics.
const (
	// TopicBlocks carries block announcements, and the requests and
	// responses that fetch missing ancestors.
	TopicBlocks = "/tandem/block"
	// TopicFinality carries finality votes and notifications.
	TopicFinality = "/tandem/finality"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrPayloadTooLarge is returned when an encoded message exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Message is an inbound gossip message.
type Message struct {
	Topic   string
	From    string
	Payload []byte
}

// Transport provides an interface for gossip transports to allow a node to
// exchange messages with the other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns the channel on which inbound messages are delivered.
	Consumer() <-chan Message

	// Broadcast sends a payload on a topic to every connected peer. Delivery
	// is best-effort; the local node does not receive its own messages.
	Broadcast(topic string, payload []byte) error

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
