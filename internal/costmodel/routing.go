package costmodel

import (
	"fmt"
	"sort"

	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// placement is where an operation executes under a design
type placement struct {
	broadcast bool
	targets   []int
}

// nodes returns how many nodes the operation touches
func (p placement) nodes(nodeCount int) int {
	if p.broadcast {
		return nodeCount
	}
	return len(p.targets)
}

// route decides which nodes serve op under d. Collections resolve to their
// denormalization root first; a root without a shard key lives unsharded on the
// first node. A sharded root is targeted only when every shard key field is
// bound by equality in every document the operation touches and the key has
// enough distinct values to separate nodes; a batch insert then touches the
// distinct nodes its documents hash to. Anything else, including missing
// statistics, broadcasts.
func (m *CostModel) route(d *model.Design, op *model.Operation) placement {
	root := d.Root(op.Collection)
	key := d.ShardKeys[root]
	if len(key) == 0 || m.cfg.NodeCount == 1 {
		return placement{targets: []int{0}}
	}

	bindings, ok := op.KeyBindings(key)
	if !ok || !m.separatesNodes(root, key) {
		return placement{broadcast: true}
	}

	targets := make([]int, 0, 1)
	seen := make(map[int]struct{}, 1)
	for _, bound := range bindings {
		node := m.ring.Locate(shardKeyBytes(root, bound))
		if _, dup := seen[node]; dup {
			continue
		}
		seen[node] = struct{}{}
		targets = append(targets, node)
	}
	sort.Ints(targets)
	return placement{targets: targets}
}

// separatesNodes reports whether the combined cardinality of key on root, capped
// at the collection size, reaches the node count
func (m *CostModel) separatesNodes(root string, key []string) bool {
	cs, ok := m.stats[root]
	if !ok {
		return false
	}

	need := int64(m.cfg.NodeCount)
	combined := int64(1)
	for _, field := range key {
		fs, ok := cs.Fields[field]
		if !ok || fs.Cardinality <= 0 {
			return false
		}
		// Saturate at need so the product cannot overflow.
		combined *= min(fs.Cardinality, need)
		combined = min(combined, need)
	}
	if combined > cs.TupleCount {
		combined = cs.TupleCount
	}
	return combined >= need
}

// shardKeyBytes encodes the bound key values so equal values always hash alike
func shardKeyBytes(root string, bound bson.D) []byte {
	raw, err := bson.Marshal(bound)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", bound))
	}
	return append([]byte(root+"\x00"), raw...)
}

// plan holds the placement of every operation, per interval
type plan struct {
	nodeCount int
	ops       [][]*model.Operation
	places    [][]placement
}

func (m *CostModel) plan(d *model.Design) *plan {
	p := &plan{
		nodeCount: m.cfg.NodeCount,
		ops:       m.segments,
		places:    make([][]placement, len(m.segments)),
	}
	for i, segment := range m.segments {
		p.places[i] = make([]placement, len(segment))
		for j, op := range segment {
			p.places[i][j] = m.route(d, op)
		}
	}
	return p
}
