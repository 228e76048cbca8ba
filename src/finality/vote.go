package finality

import (
	"bytes"
	"fmt"

	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/crypto"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// VoteDomain tags the digests signed by finality voters.
const VoteDomain = chain.EngineID + "/vote"

// Vote is a voter's signed endorsement of a block in a round.
type Vote struct {
	Round     uint64
	BlockHash string
	Voter     string
	Signature []byte
}

type voteBody struct {
	Round     uint64
	BlockHash string
	Voter     string
}

// Hash returns the digest covered by the signature.
func (v *Vote) Hash() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(voteBody{v.Round, v.BlockHash, v.Voter}); err != nil {
		return nil, err
	}
	return crypto.DomainHash(VoteDomain, b.Bytes()), nil
}

// Sign sets the voter and signature fields.
func (v *Vote) Sign(signer keys.Signer) error {
	v.Voter = signer.ID()
	hash, err := v.Hash()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return err
	}
	v.Signature = sig
	return nil
}

// Verify checks the signature against the voter's identity.
func (v *Vote) Verify(verifier keys.Verifier) bool {
	hash, err := v.Hash()
	if err != nil {
		return false
	}
	return verifier.Verify(v.Voter, hash, v.Signature)
}

// String ...
func (v *Vote) String() string {
	return fmt.Sprintf("vote{round: %d, block: %s, voter: %s}", v.Round, v.BlockHash, v.Voter)
}

// Notification announces that a block has been finalized.
type Notification struct {
	Round  uint64
	Hash   string
	Height uint64
}

// String ...
func (n *Notification) String() string {
	return fmt.Sprintf("finalized{round: %d, height: %d, block: %s}", n.Round, n.Height, n.Hash)
}
