package keys

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/tandem/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if PublicKeyHex(nKey.PubKey()) != PublicKeyHex(key.PubKey()) {
		t.Fatalf("Keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()
	keyfile := filepath.Join(dir, "priv_key")

	simpleKeyfile := NewSimpleKeyfile(keyfile)

	key, _ := GenerateKey()
	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := os.Chmod(keyfile, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		t.Fatal("ReadKey should fail on a world readable file")
	}
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	signer := NewPrivateKeySigner(key)
	verifier := NewSecp256k1Verifier()

	digest := crypto.SHA256([]byte("block header"))

	sig, err := signer.Sign(digest)
	if err != nil {
		t.Fatal(err)
	}

	if !verifier.Verify(signer.ID(), digest, sig) {
		t.Fatal("signature should verify")
	}

	// cached path
	if !verifier.Verify(signer.ID(), digest, sig) {
		t.Fatal("signature should verify twice")
	}

	other := crypto.SHA256([]byte("another header"))
	if verifier.Verify(signer.ID(), other, sig) {
		t.Fatal("signature should not verify another digest")
	}

	otherKey, _ := GenerateKey()
	if verifier.Verify(PublicKeyHex(otherKey.PubKey()), digest, sig) {
		t.Fatal("signature should not verify under another key")
	}

	if verifier.Verify("0XNOTAKEY", digest, sig) {
		t.Fatal("garbage identity should not verify")
	}

	if verifier.Verify(signer.ID(), digest, []byte{1, 2, 3}) {
		t.Fatal("garbage signature should not verify")
	}
}

func TestParsePublicKeyHex(t *testing.T) {
	key, _ := GenerateKey()
	id := PublicKeyHex(key.PubKey())

	pub, err := ParsePublicKeyHex(id)
	if err != nil {
		t.Fatal(err)
	}

	if PublicKeyHex(pub) != id {
		t.Fatalf("parsed key should encode to %s, not %s", id, PublicKeyHex(pub))
	}
}

func TestDumpParsePrivateKey(t *testing.T) {
	key, _ := GenerateKey()

	parsed, err := ParsePrivateKey(DumpPrivateKey(key))
	if err != nil {
		t.Fatal(err)
	}

	if PublicKeyHex(parsed.PubKey()) != PublicKeyHex(key.PubKey()) {
		t.Fatal("parsed key should match")
	}

	if _, err := ParsePrivateKey([]byte{1, 2, 3}); err == nil {
		t.Fatal("short dump should fail")
	}

	if _, err := ParsePrivateKey(make([]byte, 32)); err == nil {
		t.Fatal("zero key should fail")
	}
}

func TestReadKeyWithPrefix(t *testing.T) {
	dir := t.TempDir()
	keyfile := filepath.Join(dir, "priv_key")

	key, _ := GenerateKey()
	dump := "0x" + hex.EncodeToString(DumpPrivateKey(key)) + "\n"
	if err := os.WriteFile(keyfile, []byte(dump), 0600); err != nil {
		t.Fatal(err)
	}

	nKey, err := NewSimpleKeyfile(keyfile).ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if PublicKeyHex(nKey.PubKey()) != PublicKeyHex(key.PubKey()) {
		t.Fatalf("Keys do not match")
	}
}
