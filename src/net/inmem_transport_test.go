package net

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, trans Transport) Message {
	select {
	case msg := <-trans.Consumer():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("%s: timeout waiting for message", trans.LocalAddr())
	}
	return Message{}
}

func assertSilent(t *testing.T, trans Transport) {
	select {
	case msg := <-trans.Consumer():
		t.Fatalf("%s: unexpected message %#v", trans.LocalAddr(), msg)
	default:
	}
}

func TestInmemBroadcast(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	_, trans2 := NewInmemTransport("")
	_, trans3 := NewInmemTransport("")

	ConnectAll(trans1, trans2, trans3)

	require.NoError(t, trans1.Broadcast(TopicBlocks, []byte("block")))

	for _, trans := range []*InmemTransport{trans2, trans3} {
		msg := receive(t, trans)
		assert.Equal(t, TopicBlocks, msg.Topic)
		assert.Equal(t, addr1, msg.From)
		assert.Equal(t, []byte("block"), msg.Payload)
	}

	// no self delivery
	assertSilent(t, trans1)
}

func TestInmemDisconnect(t *testing.T) {
	_, trans1 := NewInmemTransport("a")
	addr2, trans2 := NewInmemTransport("b")

	trans1.Connect(addr2, trans2)
	trans1.Disconnect(addr2)

	require.NoError(t, trans1.Broadcast(TopicFinality, []byte("vote")))
	assertSilent(t, trans2)
}

func TestInmemFullConsumerDrops(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	_, trans2 := NewInmemTransport("")
	ConnectAll(trans1, trans2)

	for i := 0; i < DefaultInmemBuffer+5; i++ {
		require.NoError(t, trans1.Broadcast(TopicBlocks, []byte{byte(i)}))
	}

	assert.Equal(t, uint64(5), trans1.Dropped())
	assert.Len(t, trans2.Consumer(), DefaultInmemBuffer)
}

func TestInmemClose(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	_, trans2 := NewInmemTransport("")
	ConnectAll(trans1, trans2)

	require.NoError(t, trans2.Close())

	// a closed peer does not receive
	require.NoError(t, trans1.Broadcast(TopicBlocks, []byte("x")))
	assertSilent(t, trans2)

	assert.Equal(t, ErrTransportShutdown, trans2.Broadcast(TopicBlocks, []byte("y")))
}
