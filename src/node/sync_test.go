package node

import (
	"testing"

	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/stretchr/testify/assert"
)

func TestOrphanPool(t *testing.T) {
	vals := initValidators(t, 1)
	id := vals[0].ID()

	genesis := chain.NewGenesisBlock(0)
	b1 := chain.NewBlock(genesis, 1, id, nil)
	b2 := chain.NewBlock(b1, 2, id, nil)
	b3 := chain.NewBlock(b2, 3, id, nil)
	fork := chain.NewBlock(b1, 4, id, [][]byte{[]byte("fork")})
	other := chain.NewBlock(genesis, 5, id, [][]byte{[]byte("other")})

	pool := newOrphanPool(4)

	assert.True(t, pool.add(b3, "a"))
	assert.True(t, pool.add(b2, "a"))
	assert.True(t, pool.add(fork, "b"))
	assert.True(t, pool.add(b2, "b"), "held twice")
	assert.Equal(t, 3, pool.len())

	// b2 is held, so only b1 is missing
	assert.Equal(t, []string{b1.Hex()}, pool.missing())
	assert.True(t, pool.contains(b2.Hex()))

	assert.True(t, pool.add(other, "c"))
	assert.False(t, pool.add(chain.NewBlock(b3, 6, id, nil), "c"), "pool is full")

	children := pool.take(b1.Hex())
	assert.Len(t, children, 2)
	assert.Equal(t, "a", children[0].from)
	assert.False(t, pool.contains(b2.Hex()))
	assert.Equal(t, 2, pool.len())

	// other sits at height 1, b3 at height 3
	assert.Equal(t, 1, pool.prune(1))
	assert.Equal(t, []string{b2.Hex()}, pool.missing())
	assert.Equal(t, 1, pool.prune(3))
	assert.Equal(t, 0, pool.len())
	assert.Empty(t, pool.missing())
	assert.Empty(t, pool.take(b2.Hex()))
}
