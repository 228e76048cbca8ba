package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/mosaicnetworks/tandem/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the
	// validator's private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigName is the name, without extension, of the optional
	// configuration file in the data directory.
	DefaultConfigName = "tandem"
)

// Default configuration values.
const (
	DefaultLogLevel      = "debug"
	DefaultBindAddr      = "127.0.0.1:1337"
	DefaultServiceAddr   = "127.0.0.1:8000"
	DefaultTCPTimeout    = 1000 * time.Millisecond
	DefaultStore         = false
	DefaultBlockAuthor   = true
	DefaultVoter         = true
	DefaultSlotDuration  = 2 * time.Second
	DefaultGenesisTime   = 0
	DefaultRoundTimeout  = finality.DefaultRoundTimeout
	DefaultFutureRounds  = finality.DefaultMaxFutureRounds
	DefaultSeenCacheSize = 4096
	DefaultInboundBuffer = 1024
	DefaultSyncLimit     = 64
)

// Config contains all the configuration properties of a tandem node.
type Config struct {
	// DataDir is the top-level directory containing tandem configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, is a file that receives a copy of every log entry
	// at or above LogLevel.
	LogFile string `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes. It is required when BindAddr is not routable, eg. 0.0.0.0.
	AdvertiseAddr string `mapstructure:"advertise"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Bootstrap determines whether or not to load the chain from an existing
	// database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// TCPTimeout is the timeout of gossip connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// BlockAuthor makes the node produce blocks in the slots scheduled to it.
	BlockAuthor bool `mapstructure:"block-author"`

	// FinalityVoter makes the node vote in finality rounds.
	FinalityVoter bool `mapstructure:"finality-voter"`

	// RelayFinalityOnly makes the node re-broadcast finality notifications
	// without producing or voting. It cannot be combined with BlockAuthor or
	// FinalityVoter.
	RelayFinalityOnly bool `mapstructure:"relay-finality-only"`

	// SlotDuration is the length of a slot.
	SlotDuration time.Duration `mapstructure:"slot-duration"`

	// GenesisTime is the start of slot 0, in unix seconds. It must be the
	// same on every node.
	GenesisTime int64 `mapstructure:"genesis-time"`

	// RoundTimeout is the number of slots a finality round stays open.
	RoundTimeout uint64 `mapstructure:"round-timeout"`

	// FutureRounds is how many rounds ahead votes are buffered.
	FutureRounds uint64 `mapstructure:"future-rounds"`

	// SeenCacheSize is the number of gossip messages remembered to drop
	// duplicates.
	SeenCacheSize int `mapstructure:"seen-cache-size"`

	// InboundBuffer is the capacity of the inbound message queue.
	InboundBuffer int `mapstructure:"inbound-buffer"`

	// SyncLimit is the largest number of blocks requested from, or sent to,
	// a peer in one catch-up exchange.
	SyncLimit int `mapstructure:"sync-limit"`

	// Key is the private key of the validator. When nil, it is read from
	// Keyfile().
	Key *btcec.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      DefaultLogLevel,
		BindAddr:      DefaultBindAddr,
		ServiceAddr:   DefaultServiceAddr,
		Store:         DefaultStore,
		DatabaseDir:   DefaultDatabaseDir(),
		TCPTimeout:    DefaultTCPTimeout,
		BlockAuthor:   DefaultBlockAuthor,
		FinalityVoter: DefaultVoter,
		SlotDuration:  DefaultSlotDuration,
		GenesisTime:   DefaultGenesisTime,
		RoundTimeout:  DefaultRoundTimeout,
		FutureRounds:  DefaultFutureRounds,
		SeenCacheSize: DefaultSeenCacheSize,
		InboundBuffer: DefaultInboundBuffer,
		SyncLimit:     DefaultSyncLimit,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level tandem directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// BadgerDir returns the full path of the database directory.
func (c *Config) BadgerDir() string {
	return c.DatabaseDir
}

// AuthoritiesFile returns the full path of authorities.json.
func (c *Config) AuthoritiesFile() string {
	return filepath.Join(c.DataDir, authority.JSONFileName)
}

// Roles returns the node roles selected by the role flags.
func (c *Config) Roles() node.Roles {
	return node.Roles{
		BlockAuthor:   c.BlockAuthor,
		FinalityVoter: c.FinalityVoter,
		RelayOnly:     c.RelayFinalityOnly,
	}
}

// NodeConfig converts the options into the parameters of a node.Node.
func (c *Config) NodeConfig() *node.Config {
	conf := node.NewConfig(
		c.SlotDuration,
		time.Unix(c.GenesisTime, 0),
		c.Roles(),
		c.baseLogger(),
	)
	conf.RoundTimeout = c.RoundTimeout
	conf.FutureRounds = c.FutureRounds
	conf.SeenCacheSize = c.SeenCacheSize
	conf.SyncLimit = c.SyncLimit
	return conf
}

// Logger returns a formatted logrus Entry, with prefix set to "tandem".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "tandem")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(newFileHook(c.LogFile))
		}
	}
	return c.logger
}

// newFileHook writes every level to path, without colors.
func newFileHook(path string) *lfshook.LfsHook {
	pathMap := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		pathMap[l] = path
	}
	return lfshook.NewHook(pathMap, &logrus.TextFormatter{DisableColors: true})
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level tandem
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Tandem")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Tandem")
		} else {
			return filepath.Join(home, ".tandem")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
