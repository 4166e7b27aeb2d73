package costmodel

import (
	"math"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
)

// InfeasiblePenalty is added to the disk cost of a design that does not fit the
// memory budget. It keeps such designs comparable while ranking every feasible
// design ahead of them.
const InfeasiblePenalty = 1000.0

// DiskBytes estimates the storage footprint of d: documents of every collection,
// embedded children included, plus one pointer per document for each distinct
// index.
func (m *CostModel) DiskBytes(d *model.Design) int64 {
	var total float64
	for _, name := range m.stats.Names() {
		cs := m.stats[name]
		total += m.documentBytes(d, cs)
		total += float64(len(d.IndexKeys(name))) * float64(cs.TupleCount) * float64(m.cfg.AddressSizeBytes())
	}
	return int64(math.Round(total))
}

// documentBytes is the space cs's documents take under d. An embedded collection
// is stored as (children per parent × child size) inside each parent document.
func (m *CostModel) documentBytes(d *model.Design, cs *model.CollectionStat) float64 {
	own := float64(cs.TupleCount) * float64(cs.AvgDocSize)
	if !d.IsDenormalized(cs.Name) {
		return own
	}

	parent, ok := m.stats[d.Root(cs.Name)]
	if !ok || parent.TupleCount == 0 {
		// Nothing to embed into; the documents are still stored.
		return own
	}
	perParent := float64(cs.TupleCount) / float64(parent.TupleCount) * float64(cs.AvgDocSize)
	return perParent * float64(parent.TupleCount)
}

// DiskCost returns the footprint of d as a fraction of the memory budget,
// penalized when it exceeds the budget
func (m *CostModel) DiskCost(d *model.Design) float64 {
	return m.diskCost(m.DiskBytes(d))
}

func (m *CostModel) diskCost(bytes int64) float64 {
	ratio := float64(bytes) / float64(m.cfg.MaxMemoryBytes)
	if bytes > m.cfg.MaxMemoryBytes {
		return InfeasiblePenalty + ratio
	}
	return ratio
}

// Feasible returns an InfeasibleDesign error when d does not fit the memory budget
func (m *CostModel) Feasible(d *model.Design) error {
	bytes := m.DiskBytes(d)
	if bytes > m.cfg.MaxMemoryBytes {
		return errors.InfeasibleDesign(bytes, m.cfg.MaxMemoryBytes)
	}
	return nil
}
