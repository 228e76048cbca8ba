// Package keys implements the public key cryptography used by tandem nodes.
//
// Every authority owns a secp256k1 key-pair. Authorities are identified by the
// hex encoding of their compressed public key (0X prefixed, uppercase), which
// is the form used in authorities.json. Blocks and finality votes are signed
// with the private key and verified against that identity.
//
// The rest of the code base only depends on the Signer and Verifier
// capabilities, so the underlying scheme is opaque to the consensus logic.
package keys
