package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/crypto"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// EngineID tags the digests signed by block authors.
const EngineID = "sgtn"

// Header is the signed part of a block. The block hash is a digest of the
// header alone; the body is bound to it through BodyHash.
type Header struct {
	ParentHash string
	Height     uint64
	Slot       uint64
	Author     string
	BodyHash   []byte
}

// Marshal returns the canonical JSON encoding of the header.
func (h *Header) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(h); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Hash returns the digest of the header under the engine domain.
func (h *Header) Hash() ([]byte, error) {
	raw, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.DomainHash(EngineID, raw), nil
}

// Body is the opaque payload of a block. Its content is never inspected.
type Body struct {
	Transactions [][]byte
}

// Hash returns the digest of the body. Each transaction is length prefixed so
// that no two distinct bodies share an encoding.
func (b *Body) Hash() []byte {
	buf := new(bytes.Buffer)
	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, uint64(len(b.Transactions)))
	buf.Write(lenBuf)
	for _, tx := range b.Transactions {
		binary.BigEndian.PutUint64(lenBuf, uint64(len(tx)))
		buf.Write(lenBuf)
		buf.Write(tx)
	}
	return crypto.DomainHash(EngineID+"/body", buf.Bytes())
}

// Block is a header, the author's signature over the header hash, and a body.
type Block struct {
	Header    Header
	Body      Body
	Signature []byte

	// cached by seal
	hash []byte
	hex  string
}

// NewBlock assembles an unsigned block on top of parent.
func NewBlock(parent *Block, slot uint64, author string, transactions [][]byte) *Block {
	body := Body{Transactions: transactions}
	block := &Block{
		Header: Header{
			ParentHash: parent.Hex(),
			Height:     parent.Height() + 1,
			Slot:       slot,
			Author:     author,
			BodyHash:   body.Hash(),
		},
		Body: body,
	}
	block.seal()
	return block
}

// NewGenesisBlock returns the block every chain starts from. Nodes configured
// with the same genesis time derive the same genesis hash.
func NewGenesisBlock(genesisTime int64) *Block {
	body := Body{
		Transactions: [][]byte{[]byte(fmt.Sprintf("genesis %d", genesisTime))},
	}
	block := &Block{
		Header: Header{
			BodyHash: body.Hash(),
		},
		Body: body,
	}
	block.seal()
	return block
}

func (b *Block) seal() {
	hash, err := b.Header.Hash()
	if err != nil {
		return
	}
	b.hash = hash
	b.hex = common.EncodeToString(hash)
}

// Hash returns the header digest.
func (b *Block) Hash() []byte {
	if len(b.hash) == 0 {
		hash, _ := b.Header.Hash()
		return hash
	}
	return b.hash
}

// Hex returns the hex encoding of the header digest. It is the key of the
// block everywhere in the code base.
func (b *Block) Hex() string {
	if b.hex == "" {
		return common.EncodeToString(b.Hash())
	}
	return b.hex
}

// Height ...
func (b *Block) Height() uint64 {
	return b.Header.Height
}

// Slot ...
func (b *Block) Slot() uint64 {
	return b.Header.Slot
}

// Author ...
func (b *Block) Author() string {
	return b.Header.Author
}

// ParentHash ...
func (b *Block) ParentHash() string {
	return b.Header.ParentHash
}

// IsGenesis reports whether the block has no parent.
func (b *Block) IsGenesis() bool {
	return b.Header.ParentHash == "" && b.Header.Height == 0
}

// Sign seals the block with the signer's signature over the header hash.
func (b *Block) Sign(signer keys.Signer) error {
	sig, err := signer.Sign(b.Hash())
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

// Verify checks the signature against the header's author.
func (b *Block) Verify(verifier keys.Verifier) bool {
	return verifier.Verify(b.Header.Author, b.Hash(), b.Signature)
}

// BodyMatches reports whether the body hashes to the header's BodyHash.
func (b *Block) BodyMatches() bool {
	return bytes.Equal(b.Body.Hash(), b.Header.BodyHash)
}

// Marshal returns the msgpack encoding of the block.
func (b *Block) Marshal() ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, new(codec.MsgpackHandle))
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal decodes a block produced by Marshal and caches its hash.
func (b *Block) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, new(codec.MsgpackHandle))
	if err := dec.Decode(b); err != nil {
		return err
	}
	b.seal()
	return nil
}
