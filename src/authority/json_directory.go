package authority

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileName is the name of the file, in the data directory, which lists
// the authorities.
const JSONFileName = "authorities.json"

// Manifest is the content of authorities.json. Peers lists additional nodes,
// such as passive relays, that take part in gossip without being authorities.
type Manifest struct {
	Authors []*Authority `json:"authors"`
	Voters  []*Authority `json:"voters"`
	Peers   []*Authority `json:"peers,omitempty"`
}

// Directory builds the immutable Directory described by the manifest.
func (m *Manifest) Directory() (*Directory, error) {
	return NewDirectory(m.Authors, m.Voters)
}

// NetAddrs returns the distinct network addresses of every node in the
// manifest, authorities and peers alike, in order of appearance.
func (m *Manifest) NetAddrs() []string {
	seen := make(map[string]bool)
	res := []string{}

	lists := [][]*Authority{m.Authors, m.Voters, m.Peers}
	for _, list := range lists {
		for _, a := range list {
			if a == nil || a.NetAddr == "" || seen[a.NetAddr] {
				continue
			}
			seen[a.NetAddr] = true
			res = append(res, a.NetAddr)
		}
	}

	return res
}

// JSONDirectory is used to read and write a Manifest on disk in the form of a
// JSON file.
type JSONDirectory struct {
	l    sync.Mutex
	path string
}

// NewJSONDirectory creates a new JSONDirectory with reference to a base
// directory where authorities.json resides.
func NewJSONDirectory(base string) *JSONDirectory {
	return &JSONDirectory{
		path: filepath.Join(base, JSONFileName),
	}
}

// Path returns the full path of the underlying file.
func (j *JSONDirectory) Path() string {
	return j.path
}

// Manifest parses the underlying JSON file.
func (j *JSONDirectory) Manifest() (*Manifest, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, fmt.Errorf("%s is empty", j.path)
	}

	var manifest Manifest
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&manifest); err != nil {
		return nil, err
	}

	cleanse(manifest.Authors)
	cleanse(manifest.Voters)
	cleanse(manifest.Peers)

	return &manifest, nil
}

// Directory is a shorthand for reading the manifest and building its
// Directory.
func (j *JSONDirectory) Directory() (*Directory, error) {
	manifest, err := j.Manifest()
	if err != nil {
		return nil, err
	}
	return manifest.Directory()
}

// Write persists a Manifest to the JSON file.
func (j *JSONDirectory) Write(manifest *Manifest) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf, 0644)
}

// cleanse standardises the public key strings to match the format derived
// from a private key.
func cleanse(list []*Authority) {
	for _, a := range list {
		if a != nil {
			a.PubKeyHex = NewAuthority(a.PubKeyHex, "", "").PubKeyHex
		}
	}
}
