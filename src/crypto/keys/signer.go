package keys

import (
	"sync"

	"github.com/btcsuite/btcd/btcec"
	lru "github.com/hashicorp/golang-lru"
)

// Signer is the signing capability of the local node.
type Signer interface {
	// ID returns the identity the signatures verify under.
	ID() string
	// Sign returns a signature of the digest.
	Sign(digest []byte) ([]byte, error)
}

// Verifier checks signatures against identities.
type Verifier interface {
	Verify(id string, digest []byte, sig []byte) bool
}

// PrivateKeySigner implements Signer with a secp256k1 private key.
type PrivateKeySigner struct {
	key *btcec.PrivateKey
	id  string
}

// NewPrivateKeySigner ...
func NewPrivateKeySigner(key *btcec.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key: key,
		id:  PublicKeyHex(key.PubKey()),
	}
}

// ID implements Signer.
func (s *PrivateKeySigner) ID() string {
	return s.id
}

// Sign implements Signer.
func (s *PrivateKeySigner) Sign(digest []byte) ([]byte, error) {
	return Sign(s.key, digest)
}

// Key returns the underlying private key.
func (s *PrivateKeySigner) Key() *btcec.PrivateKey {
	return s.key
}

// DefaultPubKeyCacheSize bounds the number of parsed public keys kept by a
// Secp256k1Verifier.
const DefaultPubKeyCacheSize = 1024

// Secp256k1Verifier implements Verifier for identities that are hex encoded
// secp256k1 public keys. Parsed keys are cached since the same small set of
// authorities signs everything.
type Secp256k1Verifier struct {
	once  sync.Once
	cache *lru.Cache
}

// NewSecp256k1Verifier ...
func NewSecp256k1Verifier() *Secp256k1Verifier {
	v := &Secp256k1Verifier{}
	v.init()
	return v
}

func (v *Secp256k1Verifier) init() {
	v.once.Do(func() {
		v.cache, _ = lru.New(DefaultPubKeyCacheSize)
	})
}

// Verify implements Verifier. Unparseable identities never verify.
func (v *Secp256k1Verifier) Verify(id string, digest []byte, sig []byte) bool {
	v.init()

	var pub *btcec.PublicKey
	if cached, ok := v.cache.Get(id); ok {
		pub = cached.(*btcec.PublicKey)
	} else {
		parsed, err := ParsePublicKeyHex(id)
		if err != nil {
			return false
		}
		v.cache.Add(id, parsed)
		pub = parsed
	}

	return Verify(pub, digest, sig)
}
