package algorithm_test

import (
	"fmt"
	"testing"

	"github.com/devrev/designer/internal/algorithm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardRing_Deterministic(t *testing.T) {
	a := algorithm.NewShardRing(4, 32)
	b := algorithm.NewShardRing(4, 32)

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("user-%d", i))
		assert.Equal(t, a.Locate(key), b.Locate(key))
	}
}

func TestShardRing_CoversEveryNode(t *testing.T) {
	ring := algorithm.NewShardRing(3, 0)
	assert.Equal(t, 3, ring.NodeCount())
	assert.Len(t, ring.VirtualNodes(), 3*algorithm.DefaultVirtualNodes)

	hits := make(map[int]int)
	for i := 0; i < 3000; i++ {
		node := ring.Locate([]byte(fmt.Sprintf("k%d", i)))
		require.GreaterOrEqual(t, node, 0)
		require.Less(t, node, 3)
		hits[node]++
	}
	assert.Len(t, hits, 3)
	for node, n := range hits {
		assert.Greater(t, n, 500, "node %d is starved", node)
	}
}

func TestShardRing_Wraparound(t *testing.T) {
	ring := algorithm.NewShardRing(2, 8)
	vnodes := ring.VirtualNodes()
	require.NotEmpty(t, vnodes)

	first := vnodes[0]
	last := vnodes[len(vnodes)-1]
	assert.Equal(t, first.Node, ring.LocateHash(last.Hash+1), "hashes past the last position wrap to the first")
	assert.Equal(t, first.Node, ring.LocateHash(0))
	assert.Equal(t, last.Node, ring.LocateHash(last.Hash))
}

func TestShardRing_SingleNode(t *testing.T) {
	ring := algorithm.NewShardRing(1, 4)
	for i := 0; i < 50; i++ {
		assert.Equal(t, 0, ring.Locate([]byte{byte(i)}))
	}
	assert.Equal(t, "node-0", algorithm.NodeID(0))
}
