package stats

import (
	"math/rand"

	"github.com/axiomhq/hyperloglog"
	"github.com/cespare/xxhash/v2"
	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// Collector accumulates the dataset statistics of one collection from a stream of
// documents. A Collector is not safe for concurrent use; collect different
// collections in different goroutines.
type Collector struct {
	name         string
	sampleRate   int
	distinctCap  int
	rng          *rand.Rand
	tupleCount   int64
	sampledCount int64
	totalBytes   int64
	fields       map[string]*fieldCollector
}

type fieldCollector struct {
	typ      model.FieldType
	typed    bool
	distinct map[string]struct{}
	sketch   *hyperloglog.Sketch
}

func newCollector(name string, opts Options) *Collector {
	seed := opts.Seed ^ int64(xxhash.Sum64String(name))
	return &Collector{
		name:        name,
		sampleRate:  opts.SampleRate,
		distinctCap: opts.ExactDistinctLimit,
		rng:         rand.New(rand.NewSource(seed)),
		fields:      make(map[string]*fieldCollector),
	}
}

// Add records one dataset row. Every row counts towards the tuple count; only the
// sampled share of rows is inspected for sizes and distinct values.
func (c *Collector) Add(doc bson.D) {
	c.tupleCount++

	// Register fields even for skipped rows so the field set is complete.
	for _, elem := range doc {
		c.field(elem.Key)
	}

	if c.rng.Intn(100)+1 > c.sampleRate {
		return
	}
	c.sampledCount++

	for _, elem := range doc {
		fc := c.field(elem.Key)
		if !fc.typed && elem.Value != nil {
			fc.typ = classify(elem.Value)
			fc.typed = true
		}

		if elem.Key == model.IDField {
			c.totalBytes += IDSize
			continue
		}
		c.totalBytes += valueSize(elem.Value)
		fc.observe(distinctKey(elem.Value), c.distinctCap)
	}
}

func (c *Collector) field(name string) *fieldCollector {
	fc, ok := c.fields[name]
	if !ok {
		fc = &fieldCollector{typ: model.FieldTypeOther, distinct: make(map[string]struct{})}
		c.fields[name] = fc
	}
	return fc
}

// observe records a value, switching to a HyperLogLog sketch once the exact set
// outgrows limit.
func (fc *fieldCollector) observe(key string, limit int) {
	if fc.sketch != nil {
		fc.sketch.Insert([]byte(key))
		return
	}
	fc.distinct[key] = struct{}{}
	if limit > 0 && len(fc.distinct) > limit {
		fc.sketch = hyperloglog.New14()
		for k := range fc.distinct {
			fc.sketch.Insert([]byte(k))
		}
		fc.distinct = nil
	}
}

func (fc *fieldCollector) cardinality() int64 {
	if fc.sketch != nil {
		return int64(fc.sketch.Estimate())
	}
	return int64(len(fc.distinct))
}

// TupleCount returns the number of rows seen so far
func (c *Collector) TupleCount() int64 {
	return c.tupleCount
}

// Finish produces the collection statistics. Usage counters start at zero.
func (c *Collector) Finish() *model.CollectionStat {
	cs := model.NewCollectionStat(c.name)
	cs.TupleCount = c.tupleCount
	if c.sampledCount > 0 {
		// Averaged over sampled rows, not tuple_count, so sampling does not shrink the size.
		cs.AvgDocSize = c.totalBytes / c.sampledCount
	}

	for name, fc := range c.fields {
		card := fc.cardinality()
		if name == model.IDField {
			card = c.sampledCount
		}
		cs.Fields[name] = &model.FieldStat{
			Type:        fc.typ,
			Cardinality: card,
		}
	}
	cs.UpdateSelectivity()
	return cs
}
