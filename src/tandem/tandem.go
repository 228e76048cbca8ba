package tandem

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/config"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/mosaicnetworks/tandem/src/metrics"
	"github.com/mosaicnetworks/tandem/src/net"
	"github.com/mosaicnetworks/tandem/src/node"
	"github.com/mosaicnetworks/tandem/src/service"
	"github.com/mosaicnetworks/tandem/src/slot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// MetricsNamespace prefixes every metric exported by the engine.
const MetricsNamespace = "tandem"

// Tandem is the engine that wires the components of a node together.
type Tandem struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     chain.Store
	Manifest  *authority.Manifest
	Directory *authority.Directory
	Service   *service.Service
	Registry  *prometheus.Registry
	Metrics   *metrics.Recorder

	// Clock drives the slot clock. Defaults to the system clock.
	Clock slot.Clock
}

// NewTandem is a factory method to produce a Tandem instance.
func NewTandem(c *config.Config) *Tandem {
	engine := &Tandem{
		Config: c,
	}

	return engine
}

// Init initialises the engine with the parameters passed in the config. A
// Transport set before calling Init is used instead of binding a TCP one.
func (t *Tandem) Init() error {
	if err := t.initDirectory(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initDirectory")
		return err
	}

	if err := t.initKey(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initKey")
		return err
	}

	if err := t.initStore(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initStore")
		return err
	}

	if err := t.initTransport(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initTransport")
		t.Store.Close()
		return err
	}

	if err := t.initNode(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initNode")
		t.Transport.Close()
		t.Store.Close()
		return err
	}

	if err := t.initService(); err != nil {
		t.Config.Logger().WithError(err).Error("tandem.go:Init() initService")
		t.Node.Shutdown()
		return err
	}

	return nil
}

// Run starts the HTTP service, if any, and the node. It blocks until the node
// is shut down.
func (t *Tandem) Run() {
	if t.Service != nil {
		go t.Service.Serve()
	}

	t.Node.Run()
}

// Shutdown stops the service and the node.
func (t *Tandem) Shutdown() {
	if t.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := t.Service.Shutdown(ctx); err != nil {
			t.Config.Logger().WithError(err).Warn("Shutting down service")
		}
	}

	if t.Node != nil {
		t.Node.Shutdown()
	}
}

func (t *Tandem) initDirectory() error {
	jsonDirectory := authority.NewJSONDirectory(t.Config.DataDir)

	manifest, err := jsonDirectory.Manifest()
	if err != nil {
		return fmt.Errorf("reading %s: %v", jsonDirectory.Path(), err)
	}

	directory, err := manifest.Directory()
	if err != nil {
		return fmt.Errorf("%s: %v", jsonDirectory.Path(), err)
	}

	t.Manifest = manifest
	t.Directory = directory

	t.Config.Logger().WithFields(logrus.Fields{
		"authors": directory.AuthorCount(),
		"voters":  directory.VoterCount(),
		"peers":   len(manifest.Peers),
	}).Debug("Loaded authorities")

	return nil
}

func (t *Tandem) initKey() error {
	if t.Config.Key != nil {
		return nil
	}

	simpleKeyfile := keys.NewSimpleKeyfile(t.Config.Keyfile())

	privKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		return fmt.Errorf("reading private key from %s: %v", t.Config.Keyfile(), err)
	}

	t.Config.Key = privKey

	return nil
}

func (t *Tandem) initStore() error {
	if t.Config.Bootstrap {
		t.Config.Store = true
	}

	if !t.Config.Store {
		t.Store = chain.NewInmemStore()

		t.Config.Logger().Debug("created new in-mem store")

		return nil
	}

	dbPath := t.Config.BadgerDir()

	if t.Config.Bootstrap {
		t.Config.Logger().WithField("path", dbPath).Debug("Attempting to load or create database")

		store, err := chain.LoadOrCreateBadgerStore(dbPath)
		if err != nil {
			return err
		}

		if store.NeedBootstrap() {
			t.Config.Logger().Debug("loaded badger store from existing database")
		} else {
			t.Config.Logger().Debug("created new badger store from fresh database")
		}

		t.Store = store

		return nil
	}

	// Leave an existing database untouched and start a new one next to it.
	dbPath = freePath(dbPath)

	t.Config.Logger().WithField("path", dbPath).Debug("Creating new database")

	store, err := chain.NewBadgerStore(dbPath)
	if err != nil {
		return err
	}

	t.Store = store

	return nil
}

// freePath returns path if nothing lives there, otherwise the first of
// path(1), path(2), ... that is free.
func freePath(path string) string {
	res := path
	for i := 1; ; i++ {
		if _, err := os.Stat(res); os.IsNotExist(err) {
			return res
		}
		res = fmt.Sprintf("%s(%d)", path, i)
	}
}

func (t *Tandem) initTransport() error {
	if t.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		t.Config.BindAddr,
		t.Config.AdvertiseAddr,
		t.Manifest.NetAddrs(),
		t.Config.TCPTimeout,
		t.Config.InboundBuffer,
		t.Config.Logger().WithField("prefix", "net"),
	)
	if err != nil {
		return err
	}

	t.Transport = transport

	return nil
}

func (t *Tandem) initNode() error {
	validator := node.NewValidator(t.Config.Key, t.Config.Moniker)

	t.Config.Logger().WithFields(logrus.Fields{
		"id":      validator.ID(),
		"moniker": validator.Moniker,
		"roles":   t.Config.Roles().Mode(),
	}).Debug("VALIDATOR")

	clock := t.Clock
	if clock == nil {
		clock = slot.SystemClock{}
	}

	n, err := node.NewNode(
		t.Config.NodeConfig(),
		validator,
		t.Directory,
		t.Store,
		t.Transport,
		clock,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	t.Registry = prometheus.NewRegistry()
	t.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder, err := metrics.NewRecorder(MetricsNamespace, t.Registry, n)
	if err != nil {
		return err
	}
	n.Register(recorder)

	t.Node = n
	t.Metrics = recorder

	return nil
}

func (t *Tandem) initService() error {
	if !t.Config.NoService {
		t.Service = service.NewService(
			t.Config.ServiceAddr,
			t.Node,
			t.Registry,
			t.Config.Logger().WithField("prefix", "service"),
		)
	}
	return nil
}

// Keygen generates a new key and writes it to keyfile. It fails if a key
// already lives there.
func Keygen(keyfile string) (*btcec.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
