package tandem

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/config"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "tandem")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// initDataDir writes a key and an authorities.json listing that key as the
// only author and voter.
func initDataDir(t *testing.T, dir string) *btcec.PrivateKey {
	key, err := Keygen(filepath.Join(dir, config.DefaultKeyfile))
	require.NoError(t, err)

	self := authority.NewAuthority(keys.PublicKeyHex(key.PubKey()), "solo", "")

	err = authority.NewJSONDirectory(dir).Write(&authority.Manifest{
		Authors: []*authority.Authority{self},
		Voters:  []*authority.Authority{self},
	})
	require.NoError(t, err)

	return key
}

func newTestConfig(t *testing.T, dir string) *config.Config {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.Moniker = "solo"
	conf.BindAddr = "127.0.0.1:0"
	conf.ServiceAddr = "127.0.0.1:0"
	conf.SlotDuration = 50 * time.Millisecond
	conf.GenesisTime = time.Now().Unix() - 1
	conf.RoundTimeout = 2
	return conf
}

func TestKeygen(t *testing.T) {
	dir := tempDir(t)
	keyfile := filepath.Join(dir, "priv_key")

	key, err := Keygen(keyfile)
	require.NoError(t, err)

	read, err := keys.NewSimpleKeyfile(keyfile).ReadKey()
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKeyHex(key.PubKey()), keys.PublicKeyHex(read.PubKey()))

	_, err = Keygen(keyfile)
	assert.Error(t, err)
}

func TestInitErrors(t *testing.T) {
	dir := tempDir(t)

	// no authorities.json
	engine := NewTandem(newTestConfig(t, dir))
	assert.Error(t, engine.Init())

	initDataDir(t, dir)

	// a key that is not in the author list
	other, err := keys.GenerateKey()
	require.NoError(t, err)

	conf := newTestConfig(t, dir)
	conf.Key = other

	engine = NewTandem(conf)
	assert.Error(t, engine.Init())

	// unless the node only relays
	conf = newTestConfig(t, dir)
	conf.Key = other
	conf.BlockAuthor = false
	conf.FinalityVoter = false
	conf.RelayFinalityOnly = true

	engine = NewTandem(conf)
	require.NoError(t, engine.Init())
	assert.Equal(t, "relay", engine.Node.GetRoles().Mode())
	engine.Shutdown()
}

func TestInitStore(t *testing.T) {
	dir := tempDir(t)
	initDataDir(t, dir)

	conf := newTestConfig(t, dir)
	conf.Store = true

	engine := NewTandem(conf)
	require.NoError(t, engine.initStore())
	defer engine.Store.Close()
	assert.Equal(t, filepath.Join(dir, "badger_db"), engine.Store.StorePath())

	// without bootstrap, the existing database is left alone
	engine2 := NewTandem(conf)
	require.NoError(t, engine2.initStore())
	defer engine2.Store.Close()
	assert.Equal(t, filepath.Join(dir, "badger_db(1)"), engine2.Store.StorePath())
}

func TestRunAndBootstrap(t *testing.T) {
	dir := tempDir(t)
	key := initDataDir(t, dir)

	conf := newTestConfig(t, dir)
	conf.Store = true

	engine := NewTandem(conf)
	require.NoError(t, engine.Init())
	assert.Equal(t, keys.PublicKeyHex(key.PubKey()), engine.Node.ID())

	done := make(chan struct{})
	go func() {
		engine.Run()
		close(done)
	}()

	deadline := time.After(10 * time.Second)
	for engine.Node.GetHead().Finalized.Height() < 3 {
		select {
		case <-deadline:
			t.Fatalf("finalized height %d after 10s", engine.Node.GetHead().Finalized.Height())
		case <-time.After(20 * time.Millisecond):
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	engine.Service.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tandem_finalized_height")

	engine.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	finalized := engine.Node.GetHead().Finalized
	best := engine.Node.GetHead().Best

	// restart from the database
	conf2 := newTestConfig(t, dir)
	conf2.GenesisTime = conf.GenesisTime
	conf2.Bootstrap = true

	engine2 := NewTandem(conf2)
	require.NoError(t, engine2.Init())
	defer engine2.Shutdown()

	head := engine2.Node.GetHead()
	assert.Equal(t, finalized.Hex(), head.Finalized.Hex())
	assert.Equal(t, best.Hex(), head.Best.Hex())
}
