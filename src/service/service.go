// Package service exposes the state of a tandem node over HTTP.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Node is what the service reads from a tandem node.
type Node interface {
	GetStats() map[string]string
	GetHead() chain.Head
	GetBlock(hash string) (*chain.Block, error)
	GetRound() (finality.RoundInfo, bool)
	GetDirectory() *authority.Directory
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	gatherer    prometheus.Gatherer
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates a service and registers its handlers. gatherer may be
// nil, in which case /metrics is not served.
func NewService(bindAddress string, n Node, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		gatherer:    gatherer,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering tandem API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/head", s.makeHandler(s.GetHead))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/round", s.makeHandler(s.GetRound))
	s.mux.HandleFunc("/authorities", s.makeHandler(s.GetAuthorities))
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call that returns when the
// server fails or is shut down.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving tandem API")

	s.Lock()
	s.server = &http.Server{
		Addr:              s.bindAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.Unlock()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops a running server.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// BlockSummary is the JSON view of a block.
type BlockSummary struct {
	Hash         string `json:"hash"`
	Height       uint64 `json:"height"`
	Slot         uint64 `json:"slot"`
	ParentHash   string `json:"parent_hash"`
	Author       string `json:"author"`
	BodyHash     string `json:"body_hash"`
	Transactions int    `json:"transactions"`
	Signature    string `json:"signature,omitempty"`
}

func newBlockSummary(b *chain.Block) BlockSummary {
	return BlockSummary{
		Hash:         b.Hex(),
		Height:       b.Height(),
		Slot:         b.Slot(),
		ParentHash:   b.ParentHash(),
		Author:       b.Author(),
		BodyHash:     common.EncodeToString(b.Header.BodyHash),
		Transactions: len(b.Body.Transactions),
		Signature:    common.EncodeToString(b.Signature),
	}
}

// HeadSummary is the JSON view of the chain heads.
type HeadSummary struct {
	Best      BlockSummary `json:"best"`
	Finalized BlockSummary `json:"finalized"`
}

// GetHead ...
func (s *Service) GetHead(w http.ResponseWriter, r *http.Request) {
	head := s.node.GetHead()
	writeJSON(w, HeadSummary{
		Best:      newBlockSummary(head.Best),
		Finalized: newBlockSummary(head.Finalized),
	})
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/block/")

	block, err := s.node.GetBlock(common.CleanseHex(param))
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving block %s", param)

		status := http.StatusInternalServerError
		if common.IsStore(err, common.KeyNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)

		return
	}

	writeJSON(w, newBlockSummary(block))
}

// GetRound ...
func (s *Service) GetRound(w http.ResponseWriter, r *http.Request) {
	round, ok := s.node.GetRound()
	if !ok {
		http.Error(w, "finality has not started", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, round)
}

// GetAuthorities ...
func (s *Service) GetAuthorities(w http.ResponseWriter, r *http.Request) {
	dir := s.node.GetDirectory()
	writeJSON(w, authority.Manifest{
		Authors: toPointers(dir.Authors()),
		Voters:  toPointers(dir.Voters()),
	})
}

func toPointers(list []authority.Authority) []*authority.Authority {
	res := make([]*authority.Authority, len(list))
	for i := range list {
		res[i] = &list[i]
	}
	return res
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
