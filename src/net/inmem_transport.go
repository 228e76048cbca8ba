package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultInmemBuffer is the capacity of an in-memory consumer channel.
const DefaultInmemBuffer = 1024

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow tandem nodes to
// be tested in-memory without going over a network. Messages to a peer whose
// consumer channel is full are dropped, like a congested gossip link.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan Message
	localAddr  string
	peers      map[string]*InmemTransport
	shutdown   bool
	dropped    uint64
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan Message, DefaultInmemBuffer),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan Message {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Broadcast implements the Transport interface.
func (i *InmemTransport) Broadcast(topic string, payload []byte) error {
	i.RLock()
	if i.shutdown {
		i.RUnlock()
		return ErrTransportShutdown
	}
	peers := make([]*InmemTransport, 0, len(i.peers))
	for _, p := range i.peers {
		peers = append(peers, p)
	}
	i.RUnlock()

	msg := Message{
		Topic:   topic,
		From:    i.localAddr,
		Payload: payload,
	}

	for _, peer := range peers {
		if !peer.deliver(msg) {
			atomic.AddUint64(&i.dropped, 1)
		}
	}

	return nil
}

func (i *InmemTransport) deliver(msg Message) bool {
	i.RLock()
	defer i.RUnlock()

	if i.shutdown {
		return false
	}

	select {
	case i.consumerCh <- msg:
		return true
	default:
		return false
	}
}

// Dropped returns the number of messages this transport could not hand to a
// peer.
func (i *InmemTransport) Dropped() uint64 {
	return atomic.LoadUint64(&i.dropped)
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
	i.shutdown = true
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}

// ConnectAll connects every transport to every other one.
func ConnectAll(transports ...*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}
