package net

import (
	"bufio"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	bufSize = math.MaxUint16

	// DefaultPeerQueue is the number of outbound messages buffered per peer.
	DefaultPeerQueue = 256
	// DefaultConsumerBuffer is the default capacity of the inbound channel.
	DefaultConsumerBuffer = 1024
)

// StreamLayer dials and accepts the connections of a NetworkTransport.
type StreamLayer interface {
	net.Listener

	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address other nodes reach this one at.
	AdvertiseAddr() string
}

// wireMessage is the frame written on the stream for every gossip message.
type wireMessage struct {
	Topic   string
	From    string
	Payload []byte
}

/*
NetworkTransport provides a network based gossip transport. It requires an
underlying stream layer to provide a stream abstraction, which can be simple
TCP, TLS, etc.

Every peer gets one outbound connection, dialed lazily and re-dialed after a
failure, fed by a bounded queue. Broadcast never blocks: when a peer's queue is
full the message is dropped for that peer. Inbound connections are read until
they close; every frame is a msgpack encoded wireMessage.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	stream  StreamLayer
	timeout time.Duration

	consumeCh chan Message

	peersLock sync.Mutex
	peers     map[string]*peerSender

	connsLock sync.Mutex
	conns     map[net.Conn]struct{}

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	wg sync.WaitGroup
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

type peerSender struct {
	target string
	queue  chan wireMessage
	conn   *netConn // only touched by the sender routine
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The timeout is used to dial peers and to apply write deadlines.
// bufferSize is the capacity of the Consumer channel.
func NewNetworkTransport(
	stream StreamLayer,
	timeout time.Duration,
	bufferSize int,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if bufferSize <= 0 {
		bufferSize = DefaultConsumerBuffer
	}

	trans := &NetworkTransport{
		logger:     logger,
		stream:     stream,
		timeout:    timeout,
		consumeCh:  make(chan Message, bufferSize),
		peers:      make(map[string]*peerSender),
		conns:      make(map[net.Conn]struct{}),
		shutdownCh: make(chan struct{}),
	}

	return trans
}

// Close is used to stop the network transport. It returns once every routine
// started by the transport has exited.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connsLock.Lock()
		for c := range n.conns {
			c.Close()
		}
		n.connsLock.Unlock()

		n.shutdown = true
	}
	n.shutdownLock.Unlock()

	n.wg.Wait()

	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan Message {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// AddPeer registers a peer to broadcast to. Our own address, empty addresses
// and known peers are ignored.
func (n *NetworkTransport) AddPeer(addr string) {
	if addr == "" || addr == n.AdvertiseAddr() || addr == n.LocalAddr() {
		return
	}

	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.shutdown {
		return
	}

	n.peersLock.Lock()
	defer n.peersLock.Unlock()

	if _, ok := n.peers[addr]; ok {
		return
	}

	p := &peerSender{
		target: addr,
		queue:  make(chan wireMessage, DefaultPeerQueue),
	}
	n.peers[addr] = p

	n.wg.Add(1)
	go n.runSender(p)
}

// Peers returns the addresses of the registered peers.
func (n *NetworkTransport) Peers() []string {
	n.peersLock.Lock()
	defer n.peersLock.Unlock()

	res := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		res = append(res, addr)
	}
	return res
}

// Broadcast implements the Transport interface.
func (n *NetworkTransport) Broadcast(topic string, payload []byte) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	msg := wireMessage{
		Topic:   topic,
		From:    n.AdvertiseAddr(),
		Payload: payload,
	}

	n.peersLock.Lock()
	defer n.peersLock.Unlock()

	for _, p := range n.peers {
		select {
		case p.queue <- msg:
		default:
			n.logger.WithFields(logrus.Fields{
				"peer":  p.target,
				"topic": topic,
			}).Debug("Peer queue full, dropping message")
		}
	}

	return nil
}

func (n *NetworkTransport) runSender(p *peerSender) {
	defer n.wg.Done()
	defer func() {
		if p.conn != nil {
			p.conn.Release()
		}
	}()

	for {
		select {
		case msg := <-p.queue:
			n.send(p, msg)
		case <-n.shutdownCh:
			return
		}
	}
}

// send writes a message on the peer's connection, dialing it first if needed.
// A failed write drops the connection; the next message re-dials.
func (n *NetworkTransport) send(p *peerSender, msg wireMessage) {
	if p.conn == nil {
		conn, err := n.stream.Dial(p.target, n.timeout)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  p.target,
				"error": err,
			}).Debug("Failed to dial peer")
			return
		}

		w := bufio.NewWriterSize(conn, bufSize)
		p.conn = &netConn{
			target: p.target,
			conn:   conn,
			w:      w,
			enc:    codec.NewEncoder(w, new(codec.MsgpackHandle)),
		}
	}

	if n.timeout > 0 {
		p.conn.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}

	err := p.conn.enc.Encode(&msg)
	if err == nil {
		err = p.conn.w.Flush()
	}

	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":  p.target,
			"error": err,
		}).Debug("Failed to send message")
		p.conn.Release()
		p.conn = nil
	}
}

// Listen starts accepting inbound connections in the background.
func (n *NetworkTransport) Listen() {
	n.wg.Add(1)
	go n.accept()
}

func (n *NetworkTransport) accept() {
	defer n.wg.Done()

	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		if !n.track(conn) {
			conn.Close()
			return
		}

		// Handle the connection in dedicated routine
		n.wg.Add(1)
		go n.handleConn(conn)
	}
}

func (n *NetworkTransport) track(conn net.Conn) bool {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.shutdown {
		return false
	}

	n.connsLock.Lock()
	n.conns[conn] = struct{}{}
	n.connsLock.Unlock()

	return true
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer n.wg.Done()
	defer func() {
		n.connsLock.Lock()
		delete(n.conns, conn)
		n.connsLock.Unlock()
		conn.Close()
	}()

	r := bufio.NewReaderSize(conn, bufSize)
	dec := codec.NewDecoder(r, new(codec.MsgpackHandle))

	for {
		var msg wireMessage
		if err := dec.Decode(&msg); err != nil {
			if err != io.EOF && !n.IsShutdown() {
				n.logger.WithField("error", err).Debug("Failed to decode incoming message")
			}
			return
		}

		select {
		case n.consumeCh <- Message{Topic: msg.Topic, From: msg.From, Payload: msg.Payload}:
		case <-n.shutdownCh:
			return
		}
	}
}
