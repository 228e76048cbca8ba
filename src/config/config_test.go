package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()

	conf.SetDataDir("/tmp/tandem")

	assert.Equal(t, "/tmp/tandem", conf.DataDir)
	assert.Equal(t, filepath.Join("/tmp/tandem", DefaultBadgerFile), conf.BadgerDir())
	assert.Equal(t, filepath.Join("/tmp/tandem", DefaultKeyfile), conf.Keyfile())
	assert.Equal(t, filepath.Join("/tmp/tandem", "authorities.json"), conf.AuthoritiesFile())

	// an explicit database directory is left alone
	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	assert.Equal(t, "/var/db", conf.BadgerDir())
}

func TestNodeConfig(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	conf.SlotDuration = 3 * time.Second
	conf.GenesisTime = 1560000000
	conf.RoundTimeout = 7
	conf.FutureRounds = 1
	conf.SeenCacheSize = 12
	conf.SyncLimit = 5
	conf.BlockAuthor = false

	nc := conf.NodeConfig()

	assert.Equal(t, 3*time.Second, nc.SlotDuration)
	assert.Equal(t, int64(1560000000), nc.GenesisTime.Unix())
	assert.Equal(t, uint64(7), nc.RoundTimeout)
	assert.Equal(t, uint64(1), nc.FutureRounds)
	assert.Equal(t, 12, nc.SeenCacheSize)
	assert.Equal(t, 5, nc.SyncLimit)
	assert.False(t, nc.Roles.BlockAuthor)
	assert.True(t, nc.Roles.FinalityVoter)
	assert.Equal(t, "voter", nc.Roles.Mode())
	assert.Equal(t, conf.logger, nc.Logger)
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
		"other": logrus.DebugLevel,
	}
	for s, l := range cases {
		if got := LogLevel(s); got != l {
			t.Fatalf("LogLevel(%q) should be %v, not %v", s, l, got)
		}
	}
}

func TestLogFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "tandem-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(dir, "tandem.log")

	logger := conf.Logger()
	assert.Equal(t, logrus.InfoLevel, logger.Logger.Level)

	logger.Logger.Out = new(strings.Builder)
	logger.Info("written to file")
	logger.Debug("filtered out")

	data, err := os.ReadFile(conf.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.NotContains(t, string(data), "filtered out")
}
