package net

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/ugorji/go/codec"
)

// MaxPayloadSize bounds the decompressed size of a gossip payload.
const MaxPayloadSize = 4 << 20

// FinalityMessageType tells votes and notifications apart on the finality
// topic.
type FinalityMessageType uint8

const (
	// VoteMessage carries a finality vote.
	VoteMessage FinalityMessageType = iota
	// NotificationMessage carries a finality notification.
	NotificationMessage
)

// String ...
func (t FinalityMessageType) String() string {
	switch t {
	case VoteMessage:
		return "Vote"
	case NotificationMessage:
		return "Notification"
	default:
		return "Unknown"
	}
}

// FinalityMessage is the payload of the finality topic. Exactly one of Vote
// and Notification is set, according to Type.
type FinalityMessage struct {
	Type         FinalityMessageType
	Vote         *finality.Vote
	Notification *finality.Notification
}

// BlockMessageType tells announcements, requests and responses apart on the
// blocks topic.
type BlockMessageType uint8

const (
	// BlockAnnounce carries a block freshly produced by its author.
	BlockAnnounce BlockMessageType = iota
	// BlockRequestMessage asks peers for a block and its ancestors.
	BlockRequestMessage
	// BlockResponseMessage answers a request with blocks in ascending height.
	BlockResponseMessage
)

// String ...
func (t BlockMessageType) String() string {
	switch t {
	case BlockAnnounce:
		return "Announce"
	case BlockRequestMessage:
		return "Request"
	case BlockResponseMessage:
		return "Response"
	default:
		return "Unknown"
	}
}

// MaxResponseBlocks bounds the number of blocks in a response.
const MaxResponseBlocks = 256

// BlockRequest asks for the block Hash and up to Limit-1 of its ancestors
// above height Floor. Requester and Nonce make every request, and the
// responses to it, a distinct payload.
type BlockRequest struct {
	Hash      string
	Floor     uint64
	Limit     int
	Requester string
	Nonce     uint64
}

// BlockMessage is a decoded blocks topic payload. Announcements hold one
// block, responses hold the request they answer and at least one block.
type BlockMessage struct {
	Type    BlockMessageType
	Request *BlockRequest
	Blocks  []*chain.Block
}

// blockEnvelope is the wire form of a BlockMessage. Blocks travel in their own
// msgpack encoding so that decoding seals them.
type blockEnvelope struct {
	Type    BlockMessageType
	Request *BlockRequest
	Blocks  [][]byte
}

// EncodeBlock returns the announcement payload of a block.
func EncodeBlock(b *chain.Block) ([]byte, error) {
	return encodeBlocks(BlockAnnounce, nil, []*chain.Block{b})
}

// EncodeBlockRequest returns the payload of a block request.
func EncodeBlockRequest(req *BlockRequest) ([]byte, error) {
	return encodeBlocks(BlockRequestMessage, req, nil)
}

// EncodeBlockResponse returns the payload answering req with blocks.
func EncodeBlockResponse(req *BlockRequest, blocks []*chain.Block) ([]byte, error) {
	return encodeBlocks(BlockResponseMessage, req, blocks)
}

// DecodeBlockMessage parses a blocks topic payload. The blocks are not
// validated.
func DecodeBlockMessage(payload []byte) (*BlockMessage, error) {
	data, err := decompress(payload)
	if err != nil {
		return nil, err
	}

	env := new(blockEnvelope)
	dec := codec.NewDecoderBytes(data, new(codec.MsgpackHandle))
	if err := dec.Decode(env); err != nil {
		return nil, fmt.Errorf("decoding block message: %v", err)
	}

	switch env.Type {
	case BlockAnnounce:
		if len(env.Blocks) != 1 {
			return nil, fmt.Errorf("announcement with %d blocks", len(env.Blocks))
		}
	case BlockRequestMessage:
		if env.Request == nil || env.Request.Hash == "" {
			return nil, fmt.Errorf("request without a block hash")
		}
	case BlockResponseMessage:
		if env.Request == nil {
			return nil, fmt.Errorf("response without a request")
		}
		if len(env.Blocks) == 0 || len(env.Blocks) > MaxResponseBlocks {
			return nil, fmt.Errorf("response with %d blocks", len(env.Blocks))
		}
	default:
		return nil, fmt.Errorf("unknown block message type %d", env.Type)
	}

	msg := &BlockMessage{
		Type:    env.Type,
		Request: env.Request,
		Blocks:  make([]*chain.Block, len(env.Blocks)),
	}
	for i, raw := range env.Blocks {
		b := new(chain.Block)
		if err := b.Unmarshal(raw); err != nil {
			return nil, fmt.Errorf("decoding block: %v", err)
		}
		msg.Blocks[i] = b
	}

	return msg, nil
}

func encodeBlocks(t BlockMessageType, req *BlockRequest, blocks []*chain.Block) ([]byte, error) {
	env := &blockEnvelope{
		Type:    t,
		Request: req,
		Blocks:  make([][]byte, len(blocks)),
	}
	for i, b := range blocks {
		raw, err := b.Marshal()
		if err != nil {
			return nil, err
		}
		env.Blocks[i] = raw
	}

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, new(codec.MsgpackHandle))
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	if len(buf) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return snappy.Encode(nil, buf), nil
}

// EncodeVote returns the gossip payload of a vote.
func EncodeVote(v *finality.Vote) ([]byte, error) {
	return encodeFinality(&FinalityMessage{Type: VoteMessage, Vote: v})
}

// EncodeNotification returns the gossip payload of a notification.
func EncodeNotification(n *finality.Notification) ([]byte, error) {
	return encodeFinality(&FinalityMessage{Type: NotificationMessage, Notification: n})
}

// DecodeFinality parses a finality topic payload.
func DecodeFinality(payload []byte) (*FinalityMessage, error) {
	data, err := decompress(payload)
	if err != nil {
		return nil, err
	}

	msg := new(FinalityMessage)
	dec := codec.NewDecoderBytes(data, new(codec.MsgpackHandle))
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("decoding finality message: %v", err)
	}

	switch msg.Type {
	case VoteMessage:
		if msg.Vote == nil {
			return nil, fmt.Errorf("vote message without vote")
		}
	case NotificationMessage:
		if msg.Notification == nil {
			return nil, fmt.Errorf("notification message without notification")
		}
	default:
		return nil, fmt.Errorf("unknown finality message type %d", msg.Type)
	}

	return msg, nil
}

func encodeFinality(msg *FinalityMessage) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, new(codec.MsgpackHandle))
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buf), nil
}

func decompress(payload []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(payload)
	if err != nil {
		return nil, fmt.Errorf("bad payload: %v", err)
	}
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes", n)
	}
	return snappy.Decode(nil, payload)
}
