package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the failures a block store can report.
type StoreErrType uint32

const (
	// KeyNotFound means the requested key is absent.
	KeyNotFound StoreErrType = iota
	// Empty means the store has never held the requested item.
	Empty
)

func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "Not Found"
	case Empty:
		return "Empty"
	default:
		return fmt.Sprintf("StoreErrType(%d)", uint32(t))
	}
}

// StoreErr is returned by the block stores. It names the kind of data and
// the key that was accessed.
type StoreErr struct {
	DataType string
	Type     StoreErrType
	Key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		DataType: dataType,
		Type:     errType,
		Key:      key,
	}
}

func (e StoreErr) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.DataType, e.Type)
	}
	return fmt.Sprintf("%s %s: %s", e.DataType, e.Key, e.Type)
}

// IsStore reports whether err, or an error it wraps, is a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.Type == t
}
