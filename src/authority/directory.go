package authority

import (
	"fmt"

	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/crypto"
)

// Directory holds the ordered author list and the finality voter list. It is
// immutable once constructed and safe for concurrent use without locking.
type Directory struct {
	authors []Authority
	voters  []Authority
	roles   map[string]Role
	byID    map[string]Authority
	hex     string
}

// NewDirectory copies the given lists into a new Directory. Identities are
// normalised to the 0X uppercase form. The author list must not be empty and
// neither list may contain duplicates.
func NewDirectory(authors []*Authority, voters []*Authority) (*Directory, error) {
	if len(authors) == 0 {
		return nil, fmt.Errorf("author list is empty")
	}

	d := &Directory{
		authors: make([]Authority, 0, len(authors)),
		voters:  make([]Authority, 0, len(voters)),
		roles:   make(map[string]Role),
		byID:    make(map[string]Authority),
	}

	add := func(list *[]Authority, a *Authority, role Role) error {
		if a == nil {
			return fmt.Errorf("nil authority")
		}
		cp := *a
		cp.PubKeyHex = common.CleanseHex(cp.PubKeyHex)
		if d.roles[cp.PubKeyHex].Has(role) {
			return fmt.Errorf("duplicate %s %s", role, cp.PubKeyHex)
		}
		d.roles[cp.PubKeyHex] |= role
		if _, ok := d.byID[cp.PubKeyHex]; !ok {
			d.byID[cp.PubKeyHex] = cp
		}
		*list = append(*list, cp)
		return nil
	}

	for _, a := range authors {
		if err := add(&d.authors, a, RoleAuthor); err != nil {
			return nil, err
		}
	}

	for _, v := range voters {
		if err := add(&d.voters, v, RoleVoter); err != nil {
			return nil, err
		}
	}

	d.hex = d.computeHex()

	return d, nil
}

// ScheduledAuthor returns the author of a slot, ie. the author at index
// slot mod len(authors).
func (d *Directory) ScheduledAuthor(slot uint64) Authority {
	return d.authors[slot%uint64(len(d.authors))]
}

// IsScheduled reports whether id is the scheduled author of slot.
func (d *Directory) IsScheduled(id string, slot uint64) bool {
	return d.ScheduledAuthor(slot).PubKeyHex == id
}

// Roles returns the role tag of an identity. Unknown identities get no role.
func (d *Directory) Roles(id string) Role {
	return d.roles[id]
}

// IsAuthor ...
func (d *Directory) IsAuthor(id string) bool {
	return d.roles[id].Has(RoleAuthor)
}

// IsVoter ...
func (d *Directory) IsVoter(id string) bool {
	return d.roles[id].Has(RoleVoter)
}

// Lookup returns the authority registered under id.
func (d *Directory) Lookup(id string) (Authority, bool) {
	a, ok := d.byID[id]
	return a, ok
}

// Authors returns a copy of the ordered author list.
func (d *Directory) Authors() []Authority {
	res := make([]Authority, len(d.authors))
	copy(res, d.authors)
	return res
}

// Voters returns a copy of the finality voter list.
func (d *Directory) Voters() []Authority {
	res := make([]Authority, len(d.voters))
	copy(res, d.voters)
	return res
}

// AuthorCount ...
func (d *Directory) AuthorCount() int {
	return len(d.authors)
}

// VoterCount ...
func (d *Directory) VoterCount() int {
	return len(d.voters)
}

// SuperMajority returns the smallest number of voters that is strictly more
// than two thirds of the voter list.
func (d *Directory) SuperMajority() int {
	return 2*len(d.voters)/3 + 1
}

// HasQuorum reports whether count distinct voters exceed two thirds of the
// voter list.
func (d *Directory) HasQuorum(count int) bool {
	return len(d.voters) > 0 && 3*count > 2*len(d.voters)
}

// Hex uniquely identifies the directory. It is computed by hashing the author
// and voter identities in order.
func (d *Directory) Hex() string {
	return d.hex
}

func (d *Directory) computeHex() string {
	hash := []byte{}
	for _, a := range d.authors {
		hash = crypto.SimpleHashFromTwoHashes(hash, []byte(a.PubKeyHex))
	}
	hash = crypto.SimpleHashFromTwoHashes(hash, []byte("voters"))
	for _, v := range d.voters {
		hash = crypto.SimpleHashFromTwoHashes(hash, []byte(v.PubKeyHex))
	}
	return common.EncodeToString(hash)
}
