package stats

import (
	"sort"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Defaults for Options fields left at zero
const (
	DefaultExactDistinctLimit   = 1 << 16
	DefaultInterestingThreshold = 0.01
)

// Options controls how statistics are derived
type Options struct {
	// SampleRate is the percentage of dataset rows inspected, in (0,100].
	SampleRate int
	// Seed makes row sampling reproducible.
	Seed int64
	// ExactDistinctLimit bounds the exact distinct-value set kept per field.
	ExactDistinctLimit int
	// InterestingThreshold is the minimum selectivity of an interesting field.
	InterestingThreshold float64
}

// Samples maps collection name to the dataset rows drawn from it
type Samples map[string][]bson.D

// Engine derives collection statistics from dataset samples and a workload trace
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine validates opts and creates an Engine
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if opts.SampleRate <= 0 || opts.SampleRate > 100 {
		return nil, errors.InvalidConfiguration("sample_rate", "must be in (0,100]")
	}
	if opts.ExactDistinctLimit == 0 {
		opts.ExactDistinctLimit = DefaultExactDistinctLimit
	}
	if opts.InterestingThreshold == 0 {
		opts.InterestingThreshold = DefaultInterestingThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}, nil
}

// NewCollector starts collecting statistics for one collection
func (e *Engine) NewCollector(collection string) *Collector {
	return newCollector(collection, e.opts)
}

// ComputeStats builds statistics for every sampled collection and then folds in
// the workload's field usage.
func (e *Engine) ComputeStats(samples Samples, ops []*model.Operation) (model.Statistics, error) {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(model.Statistics, len(samples))
	for _, name := range names {
		c := e.NewCollector(name)
		for _, doc := range samples[name] {
			c.Add(doc)
		}
		result[name] = c.Finish()
	}

	if err := e.ProcessWorkload(result, ops); err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessWorkload resets and recomputes query_use_count and interesting fields.
// Each operation counts once per referenced field; fields the dataset never
// showed are ignored. An operation on an unknown collection is an error.
func (e *Engine) ProcessWorkload(stats model.Statistics, ops []*model.Operation) error {
	for _, cs := range stats {
		cs.ResetUsage()
	}

	for _, op := range ops {
		cs, ok := stats[op.Collection]
		if !ok {
			return errors.UnknownCollection(op.Collection).
				WithDetail("op_type", string(op.Type))
		}
		for _, field := range op.ReferencedFields() {
			if fs, known := cs.Fields[field]; known {
				fs.QueryUseCount++
			}
		}
	}

	for _, name := range stats.Names() {
		cs := stats[name]
		cs.InterestingFields = InterestingFields(cs, e.opts.InterestingThreshold)
		e.logger.Debug("Collection statistics computed",
			zap.String("collection", name),
			zap.Int64("tuple_count", cs.TupleCount),
			zap.Int64("avg_doc_size", cs.AvgDocSize),
			zap.Int("fields", len(cs.Fields)),
			zap.Strings("interesting", cs.InterestingFields))
	}
	return nil
}

// InterestingFields returns the fields the workload uses whose selectivity is at
// least threshold, most selective first.
func InterestingFields(cs *model.CollectionStat, threshold float64) []string {
	var fields []string
	for _, name := range cs.FieldNames() {
		fs := cs.Fields[name]
		if fs.QueryUseCount > 0 && fs.Selectivity >= threshold {
			fields = append(fields, name)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return cs.Fields[fields[i]].Selectivity > cs.Fields[fields[j]].Selectivity
	})
	return fields
}

// ComputeStats is the one-shot form of Engine.ComputeStats with default options
func ComputeStats(samples Samples, ops []*model.Operation, sampleRate int) (model.Statistics, error) {
	engine, err := NewEngine(Options{SampleRate: sampleRate}, nil)
	if err != nil {
		return nil, err
	}
	return engine.ComputeStats(samples, ops)
}
