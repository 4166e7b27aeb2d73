package algorithm

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// DefaultVirtualNodes is the number of ring positions per physical node
const DefaultVirtualNodes = 64

// VirtualNode is one position of a node on the ring
type VirtualNode struct {
	Hash uint64
	Node int
}

// ShardRing maps shard key values onto a fixed set of nodes with consistent
// hashing over virtual nodes. A ShardRing is immutable after construction and
// safe for concurrent use.
type ShardRing struct {
	ring      []uint64       // Sorted hash values
	ringMap   map[uint64]int // Hash -> node index
	nodeCount int
}

// NewShardRing builds a ring for nodes 0..nodeCount-1
func NewShardRing(nodeCount, virtualNodeCount int) *ShardRing {
	if virtualNodeCount <= 0 {
		virtualNodeCount = DefaultVirtualNodes
	}
	sr := &ShardRing{
		ring:      make([]uint64, 0, nodeCount*virtualNodeCount),
		ringMap:   make(map[uint64]int, nodeCount*virtualNodeCount),
		nodeCount: nodeCount,
	}

	for node := 0; node < nodeCount; node++ {
		for i := 0; i < virtualNodeCount; i++ {
			hash := Hash([]byte(vnodeID(node, i)))
			if _, taken := sr.ringMap[hash]; taken {
				// First claimant keeps a colliding position.
				continue
			}
			sr.ring = append(sr.ring, hash)
			sr.ringMap[hash] = node
		}
	}
	sort.Slice(sr.ring, func(i, j int) bool { return sr.ring[i] < sr.ring[j] })
	return sr
}

func vnodeID(node, i int) string {
	return fmt.Sprintf("%s-vnode-%d", NodeID(node), i)
}

// NodeID returns the display name of a node index
func NodeID(node int) string {
	return fmt.Sprintf("node-%d", node)
}

// Locate returns the node owning key: the first ring position at or after the
// key's hash, wrapping around
func (sr *ShardRing) Locate(key []byte) int {
	return sr.LocateHash(Hash(key))
}

// LocateHash returns the node owning a precomputed key hash
func (sr *ShardRing) LocateHash(keyHash uint64) int {
	if len(sr.ring) == 0 {
		return 0
	}

	idx := sort.Search(len(sr.ring), func(i int) bool {
		return sr.ring[i] >= keyHash
	})
	if idx >= len(sr.ring) {
		idx = 0
	}
	return sr.ringMap[sr.ring[idx]]
}

// VirtualNodes returns the ring positions in hash order
func (sr *ShardRing) VirtualNodes() []VirtualNode {
	out := make([]VirtualNode, 0, len(sr.ring))
	for _, hash := range sr.ring {
		out = append(out, VirtualNode{Hash: hash, Node: sr.ringMap[hash]})
	}
	return out
}

// NodeCount returns the number of physical nodes
func (sr *ShardRing) NodeCount() int {
	return sr.nodeCount
}

// Hash computes SHA-256 of key and folds it to uint64
func Hash(key []byte) uint64 {
	sum := sha256.Sum256(key)
	return binary.BigEndian.Uint64(sum[:8])
}
