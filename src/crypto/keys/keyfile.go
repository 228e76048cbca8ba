package keys

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec"
)

// keyfilePerm is the only mode accepted for a key file: owner read/write.
const keyfilePerm os.FileMode = 0600

// SimpleKeyfile stores a private key as the hex dump of its scalar, in a file
// only the owner can read.
type SimpleKeyfile struct {
	l    sync.Mutex
	path string
}

// NewSimpleKeyfile creates a SimpleKeyfile backed by path. The file is not
// touched until ReadKey or WriteKey.
func NewSimpleKeyfile(path string) *SimpleKeyfile {
	return &SimpleKeyfile{
		path: path,
	}
}

// Path returns the location of the key file.
func (k *SimpleKeyfile) Path() string {
	return k.path
}

// CheckFileInfo fails if the file is missing, or if group or others have any
// permission on it.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}

	if perm := info.Mode().Perm(); perm&^0700 != 0 {
		return fmt.Errorf("%s is accessible by group or others (%o), expected %o", k.path, perm, keyfilePerm)
	}

	return nil
}

// ReadKey parses the key written by WriteKey. Surrounding whitespace and a 0x
// prefix are tolerated.
func (k *SimpleKeyfile) ReadKey() (*btcec.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	dump := strings.TrimSpace(string(buf))
	dump = strings.TrimPrefix(strings.TrimPrefix(dump, "0x"), "0X")

	raw, err := hex.DecodeString(dump)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", k.path, err)
	}

	return ParsePrivateKey(raw)
}

// WriteKey writes the key to a temporary file next to the target and renames
// it, so a reader never sees a partial key.
func (k *SimpleKeyfile) WriteKey(key *btcec.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	dir := filepath.Dir(k.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(k.path)+".tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(hex.EncodeToString(DumpPrivateKey(key))); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(keyfilePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), k.path)
}
