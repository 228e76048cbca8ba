package authority

import (
	"github.com/mosaicnetworks/tandem/src/common"
)

// Role tags what an authority is allowed to do.
type Role uint8

const (
	// RoleAuthor marks an identity present in the ordered author list.
	RoleAuthor Role = 1 << iota
	// RoleVoter marks an identity present in the finality voter list.
	RoleVoter
)

// Has reports whether r includes all the bits of o.
func (r Role) Has(o Role) bool {
	return o != 0 && r&o == o
}

// String ...
func (r Role) String() string {
	switch {
	case r.Has(RoleAuthor | RoleVoter):
		return "author+voter"
	case r.Has(RoleAuthor):
		return "author"
	case r.Has(RoleVoter):
		return "voter"
	default:
		return "none"
	}
}

// Authority is an identity with an optional friendly name and the network
// address where its node can be reached.
type Authority struct {
	PubKeyHex string `json:"pub_key"`
	Moniker   string `json:"moniker,omitempty"`
	NetAddr   string `json:"net_addr,omitempty"`
}

// NewAuthority ...
func NewAuthority(pubKeyHex, moniker, netAddr string) *Authority {
	return &Authority{
		PubKeyHex: common.CleanseHex(pubKeyHex),
		Moniker:   moniker,
		NetAddr:   netAddr,
	}
}

// ID returns the identity string of the authority.
func (a *Authority) ID() string {
	return a.PubKeyHex
}

// Name returns the moniker if there is one, or a short form of the identity.
func (a *Authority) Name() string {
	if a.Moniker != "" {
		return a.Moniker
	}
	if len(a.PubKeyHex) > 10 {
		return a.PubKeyHex[:10]
	}
	return a.PubKeyHex
}
