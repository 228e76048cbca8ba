package chain

import (
	"os"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/tandem/src/common"
)

const (
	blockPrefix  = "block"
	finalizedKey = "finalized"
)

// BadgerStore writes blocks through to a Badger database, and serves reads
// from an InmemStore loaded at startup.
type BadgerStore struct {
	inmemStore    *InmemStore
	db            *badger.DB
	path          string
	needBootstrap bool
}

func openBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	return badger.Open(opts)
}

// NewBadgerStore creates a brand new Store with a new database
func NewBadgerStore(path string) (*BadgerStore, error) {
	handle, err := openBadger(path)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}, nil
}

// LoadBadgerStore creates a Store from an existing database, and loads all its
// blocks into memory.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openBadger(path)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:    NewInmemStore(),
		db:            handle,
		path:          path,
		needBootstrap: true,
	}

	blocks, err := store.dbBlocks()
	if err != nil {
		handle.Close()
		return nil, err
	}

	for _, b := range blocks {
		store.inmemStore.SetBlock(b)
	}

	finalized, err := store.dbGetFinalized()
	if err != nil && !common.IsStore(err, common.KeyNotFound) {
		handle.Close()
		return nil, err
	}
	if finalized != "" {
		store.inmemStore.SetFinalized(finalized)
	}

	return store, nil
}

// LoadOrCreateBadgerStore calls LoadBadgerStore if the database exists, or
// NewBadgerStore otherwise.
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path)
	if err != nil {
		return NewBadgerStore(path)
	}
	return store, nil
}

func blockKey(hash string) []byte {
	return []byte(blockPrefix + "_" + hash)
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(hash string) (*Block, error) {
	block, err := s.inmemStore.GetBlock(hash)
	if err != nil {
		block, err = s.dbGetBlock(hash)
	}
	return block, mapError(err, "Block", hash)
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(block *Block) error {
	if err := s.dbSetBlock(block); err != nil {
		return err
	}
	return s.inmemStore.SetBlock(block)
}

// DeleteBlock implements the Store interface.
func (s *BadgerStore) DeleteBlock(hash string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blockKey(hash))
	})
	if err != nil {
		return err
	}
	return s.inmemStore.DeleteBlock(hash)
}

// Blocks implements the Store interface.
func (s *BadgerStore) Blocks() ([]*Block, error) {
	return s.inmemStore.Blocks()
}

// GetFinalized implements the Store interface.
func (s *BadgerStore) GetFinalized() (string, error) {
	return s.inmemStore.GetFinalized()
}

// SetFinalized implements the Store interface.
func (s *BadgerStore) SetFinalized(hash string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(finalizedKey), []byte(hash))
	})
	if err != nil {
		return err
	}
	return s.inmemStore.SetFinalized(hash)
}

// NeedBootstrap implements the Store interface.
func (s *BadgerStore) NeedBootstrap() bool {
	return s.needBootstrap
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
// DB Methods

func (s *BadgerStore) dbGetBlock(hash string) (*Block, error) {
	var blockBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(hash))
		if err != nil {
			return err
		}
		blockBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}

	return block, nil
}

func (s *BadgerStore) dbSetBlock(block *Block) error {
	val, err := block.Marshal()
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//insert [block_hash] => [block bytes]
	if err := tx.Set(blockKey(block.Hex()), val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbBlocks() ([]*Block, error) {
	res := []*Block{}
	prefix := []byte(blockPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			block := new(Block)
			if err := block.Unmarshal(val); err != nil {
				return err
			}

			res = append(res, block)
		}
		return nil
	})

	return res, err
}

func (s *BadgerStore) dbGetFinalized() (string, error) {
	var hash []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(finalizedKey))
		if err != nil {
			return err
		}
		hash, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", mapError(err, "Finalized", finalizedKey)
	}
	return string(hash), nil
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return common.NewStoreErr(name, common.KeyNotFound, key)
		}
	}
	return err
}
