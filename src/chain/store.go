package chain

// Store persists the blocks of the arena and the finalized pointer. The Chain
// is the only writer.
type Store interface {
	GetBlock(hash string) (*Block, error)
	SetBlock(block *Block) error
	DeleteBlock(hash string) error
	Blocks() ([]*Block, error)
	GetFinalized() (string, error)
	SetFinalized(hash string) error
	NeedBootstrap() bool
	StorePath() string
	Close() error
}
