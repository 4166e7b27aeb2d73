package costmodel

import (
	"math"

	"github.com/devrev/designer/internal/model"
)

// SkewCost returns the worst load imbalance over the workload's intervals,
// measured as the coefficient of variation of per-node operation counts. A
// uniform spread costs 0, as does an interval without operations.
func (m *CostModel) SkewCost(d *model.Design) float64 {
	return m.plan(d).skewCost()
}

func (p *plan) skewCost() float64 {
	worst := 0.0
	load := make([]int64, p.nodeCount)
	for i := range p.ops {
		p.intervalLoad(i, load)
		if cv := coefficientOfVariation(load); cv > worst {
			worst = cv
		}
	}
	return worst
}

// intervalLoad fills load with the per-node operation counts of interval i
func (p *plan) intervalLoad(i int, load []int64) {
	clear(load)
	for _, place := range p.places[i] {
		if place.broadcast {
			for n := range load {
				load[n]++
			}
			continue
		}
		for _, n := range place.targets {
			load[n]++
		}
	}
}

// IntervalLoad returns the per-node operation counts of every interval under d
func (m *CostModel) IntervalLoad(d *model.Design) [][]int64 {
	p := m.plan(d)
	out := make([][]int64, len(p.ops))
	for i := range p.ops {
		out[i] = make([]int64, m.cfg.NodeCount)
		p.intervalLoad(i, out[i])
	}
	return out
}

// coefficientOfVariation is the population standard deviation over the mean
func coefficientOfVariation(load []int64) float64 {
	if len(load) == 0 {
		return 0
	}
	var sum int64
	for _, v := range load {
		sum += v
	}
	if sum == 0 {
		return 0
	}
	mean := float64(sum) / float64(len(load))

	var variance float64
	for _, v := range load {
		diff := float64(v) - mean
		variance += diff * diff
	}
	variance /= float64(len(load))
	return math.Sqrt(variance) / mean
}
