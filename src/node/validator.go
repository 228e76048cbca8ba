package node

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
)

// Validator holds the key and moniker of the local node
type Validator struct {
	Key     *btcec.PrivateKey
	Moniker string

	signer *keys.PrivateKeySigner
}

// NewValidator is a factory method for a Validator
func NewValidator(key *btcec.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
		signer:  keys.NewPrivateKeySigner(key),
	}
}

// ID returns the identity of the validator: its public key in hex
func (v *Validator) ID() string {
	return v.signer.ID()
}

// Signer returns the signing capability of the validator
func (v *Validator) Signer() keys.Signer {
	return v.signer
}

// PublicKeyBytes returns the validator's compressed public key
func (v *Validator) PublicKeyBytes() []byte {
	return keys.PublicKeyBytes(v.Key.PubKey())
}
