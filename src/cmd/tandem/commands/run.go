package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/tandem/src/config"
	"github.com/mosaicnetworks/tandem/src/tandem"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a tandem node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runTandem,
	}
	AddRunFlags(cmd.Flags())
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runTandem(cmd *cobra.Command, args []string) error {
	engine := tandem.NewTandem(&_config.Tandem)

	if err := engine.Init(); err != nil {
		_config.Tandem.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		_config.Tandem.Logger().Info("Received an interrupt, shutting down")
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(flags *pflag.FlagSet) {
	c := &_config.Tandem

	flags.String("datadir", c.DataDir, "Top-level directory for configuration and data")
	flags.String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	flags.String("log-file", c.LogFile, "Also write the logs to this file")
	flags.String("moniker", c.Moniker, "Optional name")

	// Network
	flags.StringP("listen", "l", c.BindAddr, "Listen IP:Port for tandem node")
	flags.StringP("advertise", "a", c.AdvertiseAddr, "Advertise IP:Port for tandem node")
	flags.DurationP("timeout", "t", c.TCPTimeout, "TCP Timeout")
	flags.Int("inbound-buffer", c.InboundBuffer, "Capacity of the inbound message queue")
	flags.Int("seen-cache-size", c.SeenCacheSize, "Number of gossip messages remembered to drop duplicates")
	flags.Int("sync-limit", c.SyncLimit, "Maximum number of blocks fetched from a peer in one catch-up exchange")

	// Service
	flags.StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")
	flags.Bool("no-service", c.NoService, "Disable HTTP service")

	// Store
	flags.Bool("store", c.Store, "Use badgerDB instead of in-mem DB")
	flags.String("db", c.DatabaseDir, "Dabatabase directory")
	flags.Bool("bootstrap", c.Bootstrap, "Load from database")

	// Roles
	flags.Bool("block-author", c.BlockAuthor, "Produce blocks in the slots scheduled to this node")
	flags.Bool("finality-voter", c.FinalityVoter, "Vote in finality rounds")
	flags.Bool("relay-finality-only", c.RelayFinalityOnly, "Only relay finality notifications")

	// Slots and finality
	flags.Duration("slot-duration", c.SlotDuration, "Duration of a slot")
	flags.Int64("genesis-time", c.GenesisTime, "Start of slot 0 in unix seconds")
	flags.Uint64("round-timeout", c.RoundTimeout, "Number of slots a finality round stays open")
	flags.Uint64("future-rounds", c.FutureRounds, "Number of rounds ahead for which votes are buffered")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Tandem.SetDataDir(_config.Tandem.DataDir)

	c := &_config.Tandem

	logFields := logrus.Fields{
		"tandem.DataDir":           c.DataDir,
		"tandem.BindAddr":          c.BindAddr,
		"tandem.AdvertiseAddr":     c.AdvertiseAddr,
		"tandem.ServiceAddr":       c.ServiceAddr,
		"tandem.NoService":         c.NoService,
		"tandem.Store":             c.Store,
		"tandem.LogLevel":          c.LogLevel,
		"tandem.Moniker":           c.Moniker,
		"tandem.TCPTimeout":        c.TCPTimeout,
		"tandem.BlockAuthor":       c.BlockAuthor,
		"tandem.FinalityVoter":     c.FinalityVoter,
		"tandem.RelayFinalityOnly": c.RelayFinalityOnly,
		"tandem.SlotDuration":      c.SlotDuration,
		"tandem.GenesisTime":       c.GenesisTime,
		"tandem.RoundTimeout":      c.RoundTimeout,
		"tandem.FutureRounds":      c.FutureRounds,
		"tandem.SeenCacheSize":     c.SeenCacheSize,
		"tandem.InboundBuffer":     c.InboundBuffer,
		"tandem.SyncLimit":         c.SyncLimit,
	}

	if c.Store {
		logFields["tandem.DatabaseDir"] = c.DatabaseDir
		logFields["tandem.Bootstrap"] = c.Bootstrap
	}

	c.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/tandem.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName)
	viper.AddConfigPath(_config.Tandem.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Tandem.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Tandem.Logger().Debugf("No config file found in: %s", _config.Tandem.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	_config.Tandem.Logger().Logger.Level = config.LogLevel(_config.Tandem.LogLevel)

	return nil
}
