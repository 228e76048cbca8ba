package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/tandem/src/common"
)

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey(btcec.S256())
}

// DumpPrivateKey exports a private key into a 32 byte binary dump.
func DumpPrivateKey(priv *btcec.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return priv.Serialize()
}

// ParsePrivateKey creates a private key from a binary dump produced by
// DumpPrivateKey.
func ParsePrivateKey(d []byte) (*btcec.PrivateKey, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes, got %d", btcec.PrivKeyBytesLen, len(d))
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	if priv.D.Sign() <= 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
		return nil, fmt.Errorf("invalid private key")
	}

	return priv, nil
}

// PublicKeyBytes returns the compressed form of a public key.
func PublicKeyBytes(pub *btcec.PublicKey) []byte {
	if pub == nil {
		return nil
	}
	return pub.SerializeCompressed()
}

// PublicKeyHex returns the identity string of a public key, ie. the 0X
// prefixed hex encoding of its compressed form.
func PublicKeyHex(pub *btcec.PublicKey) string {
	return common.EncodeToString(PublicKeyBytes(pub))
}

// ParsePublicKeyHex decodes an identity string into a public key.
func ParsePublicKeyHex(pubHex string) (*btcec.PublicKey, error) {
	raw, err := common.DecodeFromString(common.CleanseHex(pubHex))
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw, btcec.S256())
}

// Sign signs a digest with the private key and returns the DER encoded
// signature. Signatures are deterministic (RFC6979).
func Sign(priv *btcec.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := priv.Sign(digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify checks a DER encoded signature of digest against a public key.
func Verify(pub *btcec.PublicKey, digest []byte, sig []byte) bool {
	if pub == nil || len(sig) == 0 {
		return false
	}
	s, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	return s.Verify(digest, pub)
}
