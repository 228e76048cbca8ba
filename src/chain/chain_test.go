package chain

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/mosaicnetworks/tandem/src/authority"
	"github.com/mosaicnetworks/tandem/src/common"
	"github.com/mosaicnetworks/tandem/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initSigners(t *testing.T, n int) ([]*keys.PrivateKeySigner, *authority.Directory) {
	signers := make([]*keys.PrivateKeySigner, n)
	auths := make([]*authority.Authority, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		require.NoError(t, err)
		signers[i] = keys.NewPrivateKeySigner(key)
		auths[i] = authority.NewAuthority(signers[i].ID(), fmt.Sprintf("node%d", i), "")
	}

	dir, err := authority.NewDirectory(auths, auths)
	require.NoError(t, err)

	return signers, dir
}

func initChain(t *testing.T, n int) (*Chain, []*keys.PrivateKeySigner) {
	signers, dir := initSigners(t, n)
	return newTestChain(t, dir, NewInmemStore()), signers
}

func newTestChain(t *testing.T, dir *authority.Directory, store Store) *Chain {
	c, err := NewChain(
		NewGenesisBlock(0),
		dir,
		keys.NewSecp256k1Verifier(),
		store,
		common.NewTestEntry(t, common.TestLogLevel),
	)
	require.NoError(t, err)
	return c
}

// makeBlock builds a block for slot on parent, signed by the scheduled author.
func makeBlock(t *testing.T, parent *Block, slot uint64, signers []*keys.PrivateKeySigner, txs ...string) *Block {
	author := signers[slot%uint64(len(signers))]

	var body [][]byte
	for _, tx := range txs {
		body = append(body, []byte(tx))
	}

	block := NewBlock(parent, slot, author.ID(), body)
	require.NoError(t, block.Sign(author))
	return block
}

func mustImport(t *testing.T, c *Chain, b *Block) {
	res, err := c.Import(b)
	require.NoError(t, err)
	require.Equal(t, Imported, res)
}

func TestImportSequential(t *testing.T) {
	c, signers := initChain(t, 4)

	parent := c.Genesis()
	for slot := uint64(1); slot <= 10; slot++ {
		b := makeBlock(t, parent, slot, signers)
		mustImport(t, c, b)
		parent = b
	}

	assert.Equal(t, parent.Hex(), c.Best().Hex())
	assert.Equal(t, uint64(10), c.Best().Height())
	assert.Equal(t, c.Genesis().Hex(), c.Finalized().Hex())
	assert.Equal(t, 11, c.Len())
}

func TestImportErrors(t *testing.T) {
	c, signers := initChain(t, 4)
	genesis := c.Genesis()

	good := makeBlock(t, genesis, 1, signers, "a")
	mustImport(t, c, good)

	orphanParent := makeBlock(t, good, 2, signers)
	orphan := makeBlock(t, orphanParent, 3, signers)

	stale := makeBlock(t, good, 1, signers)

	wrongAuthor := NewBlock(good, 2, signers[3].ID(), nil)
	require.NoError(t, wrongAuthor.Sign(signers[3]))

	badSig := NewBlock(good, 2, signers[2].ID(), nil)
	require.NoError(t, badSig.Sign(signers[1]))

	badHeight := NewBlock(good, 2, signers[2].ID(), nil)
	badHeight.Header.Height = 7
	badHeight.seal()
	require.NoError(t, badHeight.Sign(signers[2]))

	badBody := makeBlock(t, good, 2, signers, "x")
	badBody.Body.Transactions = [][]byte{[]byte("y")}

	equivocation := makeBlock(t, genesis, 1, signers, "b")

	cases := []struct {
		name  string
		block *Block
		err   ImportErrType
	}{
		{"UnknownParent", orphan, UnknownParent},
		{"StaleSlot", stale, StaleSlot},
		{"WrongAuthor", wrongAuthor, WrongAuthor},
		{"BadSignature", badSig, BadSignature},
		{"BadHeight", badHeight, BadHeight},
		{"BadBody", badBody, BadBody},
		{"Equivocation", equivocation, Equivocation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Import(tc.block)
			if !IsImportErr(err, tc.err) {
				t.Fatalf("import should fail with %s, got %v", tc.err, err)
			}
			if res != Rejected {
				t.Fatalf("result should be Rejected, not %s", res)
			}
		})
	}

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, good.Hex(), c.Best().Hex())
}

func TestReimportIsNoop(t *testing.T) {
	c, signers := initChain(t, 3)

	b1 := makeBlock(t, c.Genesis(), 1, signers)
	mustImport(t, c, b1)

	head := c.Head()

	res, err := c.Import(b1)
	require.NoError(t, err)
	assert.Equal(t, AlreadyKnown, res)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, head, c.Head())
}

func TestForkChoiceLongestBranch(t *testing.T) {
	c, signers := initChain(t, 4)
	genesis := c.Genesis()

	a1 := makeBlock(t, genesis, 1, signers)
	b2 := makeBlock(t, genesis, 2, signers)
	b3 := makeBlock(t, b2, 3, signers)
	a4 := makeBlock(t, a1, 4, signers)
	a5 := makeBlock(t, a4, 5, signers)

	mustImport(t, c, a1)
	assert.Equal(t, a1.Hex(), c.Best().Hex())

	mustImport(t, c, b2)
	mustImport(t, c, b3)
	assert.Equal(t, b3.Hex(), c.Best().Hex())

	mustImport(t, c, a4)
	mustImport(t, c, a5)
	assert.Equal(t, a5.Hex(), c.Best().Hex())

	assert.Equal(t, []string{minHex(a5.Hex(), b3.Hex()), maxHex(a5.Hex(), b3.Hex())}, c.Leaves())
}

func minHex(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func maxHex(a, b string) string {
	if a < b {
		return b
	}
	return a
}

// Two nodes receive competing height-5 blocks in opposite orders and must pick
// the same head.
func TestForkChoiceTieBreakIsOrderIndependent(t *testing.T) {
	signers, dir := initSigners(t, 4)

	c1 := newTestChain(t, dir, NewInmemStore())
	c2 := newTestChain(t, dir, NewInmemStore())

	parent := c1.Genesis()
	for slot := uint64(1); slot <= 4; slot++ {
		b := makeBlock(t, parent, slot, signers)
		mustImport(t, c1, b)
		mustImport(t, c2, b)
		parent = b
	}

	x := makeBlock(t, parent, 5, signers)
	y := makeBlock(t, parent, 6, signers)

	mustImport(t, c1, x)
	mustImport(t, c1, y)

	mustImport(t, c2, y)
	mustImport(t, c2, x)

	want := minHex(x.Hex(), y.Hex())

	assert.Equal(t, uint64(5), c1.Best().Height())
	assert.Equal(t, want, c1.Best().Hex())
	assert.Equal(t, want, c2.Best().Hex())
}

func TestFinalizePrunes(t *testing.T) {
	c, signers := initChain(t, 4)
	genesis := c.Genesis()

	a1 := makeBlock(t, genesis, 1, signers)
	b2 := makeBlock(t, genesis, 2, signers)
	a3 := makeBlock(t, a1, 3, signers)
	b5 := makeBlock(t, b2, 5, signers)
	b6 := makeBlock(t, b5, 6, signers)

	for _, b := range []*Block{a1, b2, a3, b5, b6} {
		mustImport(t, c, b)
	}
	assert.Equal(t, b6.Hex(), c.Best().Hex())

	pruned, err := c.Finalize(a1.Hex())
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	assert.Equal(t, a1.Hex(), c.Finalized().Hex())
	assert.Equal(t, a3.Hex(), c.Best().Hex())
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains(b5.Hex()))

	// idempotent
	pruned, err = c.Finalize(a1.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	// a child of a pruned block
	_, err = c.Import(makeBlock(t, b6, 7, signers))
	assert.True(t, IsImportErr(err, UnknownParent), "got %v", err)

	// a block that forks below the finalized head
	_, err = c.Import(makeBlock(t, genesis, 8, signers))
	assert.True(t, IsImportErr(err, FinalityConflict), "got %v", err)

	// finality never moves backwards or sideways
	_, err = c.Finalize(genesis.Hex())
	assert.True(t, errors.Is(err, ErrNotDescendant), "got %v", err)

	_, err = c.Finalize(b5.Hex())
	assert.True(t, common.IsStore(err, common.KeyNotFound), "got %v", err)

	assert.Equal(t, a1.Hex(), c.Finalized().Hex())
}

// The finalized head stays an ancestor of the best head whatever the import
// and finalization sequence.
func TestFinalizedIsAncestorOfBest(t *testing.T) {
	c, signers := initChain(t, 4)
	rnd := rand.New(rand.NewSource(42))

	for slot := uint64(1); slot <= 60; slot++ {
		leaves := c.Leaves()
		parent, err := c.GetBlock(leaves[rnd.Intn(len(leaves))])
		require.NoError(t, err)

		// fork off the leaf's parent half of the time
		if rnd.Intn(2) == 0 && !parent.IsGenesis() {
			parent, err = c.GetBlock(parent.ParentHash())
			require.NoError(t, err)
		}

		_, err = c.Import(makeBlock(t, parent, slot, signers))
		if err != nil && !IsImportErr(err, FinalityConflict) {
			t.Fatalf("slot %d: unexpected error %v", slot, err)
		}

		if slot%7 == 0 {
			best := c.Best()
			if !best.IsGenesis() {
				_, err := c.Finalize(best.ParentHash())
				require.NoError(t, err)
			}
		}

		head := c.Head()
		if !c.IsDescendant(head.Best.Hex(), head.Finalized.Hex()) {
			t.Fatalf("slot %d: finalized %s is not an ancestor of best %s", slot, head.Finalized.Hex(), head.Best.Hex())
		}
	}

	assert.True(t, c.Finalized().Height() > 0)
}

func TestBadgerStoreBootstrap(t *testing.T) {
	signers, dir := initSigners(t, 3)
	path := t.TempDir()

	store, err := NewBadgerStore(path)
	require.NoError(t, err)

	c := newTestChain(t, dir, store)

	var blocks []*Block
	parent := c.Genesis()
	for slot := uint64(1); slot <= 5; slot++ {
		b := makeBlock(t, parent, slot, signers, fmt.Sprintf("tx%d", slot))
		mustImport(t, c, b)
		blocks = append(blocks, b)
		parent = b
	}

	// a side branch that finalization prunes
	side := makeBlock(t, blocks[0], 7, signers)
	mustImport(t, c, side)

	_, err = c.Finalize(blocks[1].Hex())
	require.NoError(t, err)

	require.NoError(t, store.Close())

	loaded, err := LoadBadgerStore(path)
	require.NoError(t, err)
	defer loaded.Close()

	assert.True(t, loaded.NeedBootstrap())

	_, err = loaded.GetBlock(side.Hex())
	assert.True(t, common.IsStore(err, common.KeyNotFound), "got %v", err)

	c2 := newTestChain(t, dir, loaded)

	assert.Equal(t, blocks[4].Hex(), c2.Best().Hex())
	assert.Equal(t, blocks[1].Hex(), c2.Finalized().Hex())
	assert.Equal(t, 6, c2.Len())

	stored, err := loaded.GetBlock(blocks[2].Hex())
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("tx3")}, stored.Body.Transactions)
}

func TestBootstrapGenesisMismatch(t *testing.T) {
	_, dir := initSigners(t, 1)
	path := t.TempDir()

	store, err := NewBadgerStore(path)
	require.NoError(t, err)
	newTestChain(t, dir, store)
	require.NoError(t, store.Close())

	loaded, err := LoadBadgerStore(path)
	require.NoError(t, err)
	defer loaded.Close()

	_, err = NewChain(NewGenesisBlock(1), dir, keys.NewSecp256k1Verifier(), loaded, common.NewTestEntry(t, common.TestLogLevel))
	if err == nil {
		t.Fatal("a different genesis should be refused")
	}
}

func TestInmemStore(t *testing.T) {
	store := NewInmemStore()

	_, err := store.GetBlock("0XAB")
	assert.True(t, common.IsStore(err, common.KeyNotFound))

	_, err = store.GetFinalized()
	assert.True(t, common.IsStore(err, common.Empty))

	genesis := NewGenesisBlock(0)
	require.NoError(t, store.SetBlock(genesis))
	require.NoError(t, store.SetFinalized(genesis.Hex()))

	b, err := store.GetBlock(genesis.Hex())
	require.NoError(t, err)
	assert.Equal(t, genesis, b)

	f, err := store.GetFinalized()
	require.NoError(t, err)
	assert.Equal(t, genesis.Hex(), f)

	require.NoError(t, store.DeleteBlock(genesis.Hex()))
	blocks, _ := store.Blocks()
	assert.Empty(t, blocks)
}
