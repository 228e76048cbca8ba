package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// tcpKeepAlive is the keep-alive period of gossip connections.
const tcpKeepAlive = 30 * time.Second

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TCPStreamLayer is a StreamLayer over plain TCP connections with keep-alive
// and Nagle's algorithm disabled.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// NewTCPStreamLayer binds bindAddr. The advertise address defaults to the
// bound address and must not be unspecified (eg. 0.0.0.0).
func NewTCPStreamLayer(bindAddr, advertiseAddr string) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	advertise, err := resolveAdvertise(list.Addr(), advertiseAddr)
	if err != nil {
		list.Close()
		return nil, err
	}

	return &TCPStreamLayer{
		advertise: advertise,
		listener:  list.(*net.TCPListener),
	}, nil
}

func resolveAdvertise(bound net.Addr, advertiseAddr string) (string, error) {
	addr := bound
	if advertiseAddr != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			return "", err
		}
		addr = resolved
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return "", errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		return "", errNotAdvertisable
	}

	if advertiseAddr != "" {
		return advertiseAddr, nil
	}
	return tcpAddr.String(), nil
}

// Dial opens a connection to a peer.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: tcpKeepAlive,
	}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

// Accept waits for the next inbound connection.
func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	conn, err := t.listener.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(tcpKeepAlive)
	conn.SetNoDelay(true)
	return conn, nil
}

// Close stops listening.
func (t *TCPStreamLayer) Close() error {
	return t.listener.Close()
}

// Addr is the bound address.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr returns the advertise address given at creation, or the
// bound address.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	return t.advertise
}

// NewTCPTransport returns a NetworkTransport over a TCPStreamLayer, connected
// to peers. The local address among peers is skipped.
func NewTCPTransport(
	bindAddr string,
	advertiseAddr string,
	peers []string,
	timeout time.Duration,
	bufferSize int,
	logger *logrus.Entry,
) (*NetworkTransport, error) {

	stream, err := NewTCPStreamLayer(bindAddr, advertiseAddr)
	if err != nil {
		return nil, err
	}

	trans := NewNetworkTransport(stream, timeout, bufferSize, logger)
	for _, p := range peers {
		trans.AddPeer(p)
	}

	return trans, nil
}
