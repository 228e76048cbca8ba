package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/sirupsen/logrus"
)

// Config contains the parameters of the Node.
type Config struct {
	SlotDuration  time.Duration
	GenesisTime   time.Time
	RoundTimeout  uint64
	FutureRounds  uint64
	SeenCacheSize int
	TxPoolSize    int
	MaxBlockTxs   int

	// OrphanPoolSize bounds the blocks held while their ancestors are
	// fetched. SyncLimit bounds the blocks in one request or response, and
	// SyncRetry is the number of slots before a missing block is requested
	// again.
	OrphanPoolSize int
	SyncLimit      int
	SyncRetry      uint64

	Roles  Roles
	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(
	slotDuration time.Duration,
	genesisTime time.Time,
	roles Roles,
	logger *logrus.Logger) *Config {

	conf := DefaultConfig()
	conf.SlotDuration = slotDuration
	conf.GenesisTime = genesisTime
	conf.Roles = roles
	conf.Logger = logger

	return conf
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		SlotDuration:   time.Second,
		GenesisTime:    time.Unix(0, 0),
		RoundTimeout:   finality.DefaultRoundTimeout,
		FutureRounds:   finality.DefaultMaxFutureRounds,
		SeenCacheSize:  4096,
		TxPoolSize:     10000,
		MaxBlockTxs:    1000,
		OrphanPoolSize: 256,
		SyncLimit:      64,
		SyncRetry:      2,
		Logger:         logger,
	}
}

// TestConfig returns a config for an author and voter node logging through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Roles = Roles{BlockAuthor: true, FinalityVoter: true}
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
