package chain

import (
	"sync"

	"github.com/mosaicnetworks/tandem/src/common"
)

// InmemStore implements the Store interface with plain maps. Nothing survives
// a restart.
type InmemStore struct {
	sync.RWMutex
	blocks    map[string]*Block
	finalized string
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		blocks: make(map[string]*Block),
	}
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(hash string) (*Block, error) {
	s.RLock()
	defer s.RUnlock()

	block, ok := s.blocks[hash]
	if !ok {
		return nil, common.NewStoreErr("Block", common.KeyNotFound, hash)
	}
	return block, nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	s.blocks[block.Hex()] = block
	return nil
}

// DeleteBlock implements the Store interface.
func (s *InmemStore) DeleteBlock(hash string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.blocks, hash)
	return nil
}

// Blocks implements the Store interface. The order is unspecified.
func (s *InmemStore) Blocks() ([]*Block, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		res = append(res, b)
	}
	return res, nil
}

// GetFinalized implements the Store interface.
func (s *InmemStore) GetFinalized() (string, error) {
	s.RLock()
	defer s.RUnlock()

	if s.finalized == "" {
		return "", common.NewStoreErr("Finalized", common.Empty, "")
	}
	return s.finalized, nil
}

// SetFinalized implements the Store interface.
func (s *InmemStore) SetFinalized(hash string) error {
	s.Lock()
	defer s.Unlock()

	s.finalized = hash
	return nil
}

// NeedBootstrap implements the Store interface. An InmemStore always starts
// empty.
func (s *InmemStore) NeedBootstrap() bool {
	return false
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
