package costmodel

import (
	"github.com/devrev/designer/internal/model"
)

// ResponseMessageSize is the payload carried by one reply message
const ResponseMessageSize = 4096

// messageWeight is the number of messages an operation costs per node it touches.
// Reads are charged by reply size; writes send a single message.
func messageWeight(op *model.Operation) int64 {
	if !op.Type.IsRead() || op.ResponseSize <= ResponseMessageSize {
		return 1
	}
	return (op.ResponseSize + ResponseMessageSize - 1) / ResponseMessageSize
}

// NetworkCost returns the weighted average number of nodes each operation of
// the workload contacts under d. The sum of nodes·messages is divided by the
// total message weight rather than the operation count, which keeps the cost
// within [0, node_count] however large the replies are. An empty workload
// costs 0.
func (m *CostModel) NetworkCost(d *model.Design) float64 {
	return m.plan(d).networkCost()
}

func (p *plan) networkCost() float64 {
	var hops, weight int64
	for i, segment := range p.ops {
		for j, op := range segment {
			w := messageWeight(op)
			hops += int64(p.places[i][j].nodes(p.nodeCount)) * w
			weight += w
		}
	}
	if weight == 0 {
		return 0
	}
	return float64(hops) / float64(weight)
}
