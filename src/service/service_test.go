package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	head      chain.Head
	blocks    map[string]*chain.Block
	round     *finality.RoundInfo
	directory *authority.Directory
}

func (f *fakeNode) GetStats() map[string]string {
	return map[string]string{"best_height": "1", "state": "Running"}
}

func (f *fakeNode) GetHead() chain.Head {
	return f.head
}

func (f *fakeNode) GetBlock(hash string) (*chain.Block, error) {
	b, ok := f.blocks[hash]
	if !ok {
		return nil, common.NewStoreErr("Block", common.KeyNotFound, hash)
	}
	return b, nil
}

func (f *fakeNode) GetRound() (finality.RoundInfo, bool) {
	if f.round == nil {
		return finality.RoundInfo{}, false
	}
	return *f.round, true
}

func (f *fakeNode) GetDirectory() *authority.Directory {
	return f.directory
}

func initService(t *testing.T) (*Service, *fakeNode) {
	a := authority.NewAuthority("0X02AA", "alice", "127.0.0.1:1337")
	b := authority.NewAuthority("0X02BB", "bob", "127.0.0.1:1338")
	dir, err := authority.NewDirectory([]*authority.Authority{a, b}, []*authority.Authority{b})
	require.NoError(t, err)

	genesis := chain.NewGenesisBlock(0)
	b1 := chain.NewBlock(genesis, 1, a.ID(), [][]byte{[]byte("tx")})

	node := &fakeNode{
		head: chain.Head{Best: b1, Finalized: genesis},
		blocks: map[string]*chain.Block{
			genesis.Hex(): genesis,
			b1.Hex():      b1,
		},
		directory: dir,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "tandem_test_total", Help: "test"}))

	return NewService("127.0.0.1:0", node, reg, common.NewTestEntry(t, common.TestLogLevel)), node
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetStats(t *testing.T) {
	s, _ := initService(t)

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stats map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, "Running", stats["state"])
}

func TestGetHeadAndBlock(t *testing.T) {
	s, node := initService(t)

	rec := get(t, s, "/head")
	require.Equal(t, http.StatusOK, rec.Code)

	var head HeadSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&head))
	assert.Equal(t, node.head.Best.Hex(), head.Best.Hash)
	assert.Equal(t, uint64(1), head.Best.Height)
	assert.Equal(t, node.head.Finalized.Hex(), head.Finalized.Hash)

	// lower case hashes are accepted
	rec = get(t, s, "/block/"+strings.ToLower(head.Best.Hash))
	require.Equal(t, http.StatusOK, rec.Code)

	var block BlockSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&block))
	assert.Equal(t, head.Best, block)
	assert.Equal(t, 1, block.Transactions)
	assert.Equal(t, "0X02AA", block.Author)

	rec = get(t, s, "/block/0XDEADBEEF")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRound(t *testing.T) {
	s, node := initService(t)

	rec := get(t, s, "/round")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	node.round = &finality.RoundInfo{Number: 3, Target: node.head.Best.Hex(), TargetHeight: 1, TargetVotes: 1}

	rec = get(t, s, "/round")
	require.Equal(t, http.StatusOK, rec.Code)

	var round finality.RoundInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&round))
	assert.Equal(t, *node.round, round)
}

func TestGetAuthorities(t *testing.T) {
	s, _ := initService(t)

	rec := get(t, s, "/authorities")
	require.Equal(t, http.StatusOK, rec.Code)

	var manifest authority.Manifest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&manifest))
	require.Len(t, manifest.Authors, 2)
	require.Len(t, manifest.Voters, 1)
	assert.Equal(t, "alice", manifest.Authors[0].Moniker)
	assert.Equal(t, "0X02BB", manifest.Voters[0].PubKeyHex)
}

func TestMetrics(t *testing.T) {
	s, _ := initService(t)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tandem_test_total 0")
}
