package chain

import (
	"errors"
	"fmt"
)

// ImportErrType enumerates the reasons a block is rejected.
type ImportErrType uint32

const (
	// UnknownParent: the parent hash is not in the store.
	UnknownParent ImportErrType = iota
	// StaleSlot: the slot is not greater than the parent's slot.
	StaleSlot
	// WrongAuthor: the author is not scheduled for the slot.
	WrongAuthor
	// BadSignature: the signature does not verify under the author's key.
	BadSignature
	// Equivocation: the author already has a different block in this slot.
	Equivocation
	// BadHeight: the height is not the parent's height plus one.
	BadHeight
	// BadBody: the body does not match the header's body hash.
	BadBody
	// FinalityConflict: the block can never descend from the finalized head.
	FinalityConflict
)

// String ...
func (t ImportErrType) String() string {
	switch t {
	case UnknownParent:
		return "UnknownParent"
	case StaleSlot:
		return "StaleSlot"
	case WrongAuthor:
		return "WrongAuthor"
	case BadSignature:
		return "BadSignature"
	case Equivocation:
		return "Equivocation"
	case BadHeight:
		return "BadHeight"
	case BadBody:
		return "BadBody"
	case FinalityConflict:
		return "FinalityConflict"
	default:
		return "Unknown"
	}
}

// ImportErr is returned by Chain.Import when a block is rejected. A rejected
// block leaves the chain untouched.
type ImportErr struct {
	errType ImportErrType
	hash    string
	detail  string
}

// NewImportErr ...
func NewImportErr(errType ImportErrType, hash string, detail string) ImportErr {
	return ImportErr{
		errType: errType,
		hash:    hash,
		detail:  detail,
	}
}

// Type ...
func (e ImportErr) Type() ImportErrType {
	return e.errType
}

// Error implements the error interface.
func (e ImportErr) Error() string {
	return fmt.Sprintf("block %s, %s: %s", e.hash, e.errType, e.detail)
}

// IsImportErr checks that an error is an ImportErr of the given type.
func IsImportErr(err error, t ImportErrType) bool {
	var importErr ImportErr
	return errors.As(err, &importErr) && importErr.errType == t
}

// ErrNotDescendant is returned when finalizing a block that is not a
// descendant of the current finalized head.
var ErrNotDescendant = errors.New("not a descendant of the finalized head")
