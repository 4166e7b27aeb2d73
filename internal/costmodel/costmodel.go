package costmodel

import (
	"sort"

	"github.com/devrev/designer/internal/algorithm"
	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Result is the cost breakdown of one design
type Result struct {
	Network    float64 `json:"network" yaml:"network"`
	Skew       float64 `json:"skew" yaml:"skew"`
	Disk       float64 `json:"disk" yaml:"disk"`
	DiskBytes  int64   `json:"disk_bytes" yaml:"disk_bytes"`
	Overall    float64 `json:"overall" yaml:"overall"`
	Infeasible bool    `json:"infeasible" yaml:"infeasible"`
}

// CostModel scores designs against a frozen workload and statistics snapshot.
// All methods are read-only; a CostModel may be shared by concurrent evaluations
// as long as nobody mutates the stats or segments handed to New.
type CostModel struct {
	stats    model.Statistics
	segments [][]*model.Operation
	cfg      model.ResourceConfig
	ring     *algorithm.ShardRing
	opCount  int
	logger   *zap.Logger
}

// Option customizes a CostModel
type Option func(*CostModel)

// WithLogger sets the logger used for evaluation diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(m *CostModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVirtualNodes sets the number of ring positions per node
func WithVirtualNodes(n int) Option {
	return func(m *CostModel) {
		m.ring = algorithm.NewShardRing(m.cfg.NodeCount, n)
	}
}

// New validates cfg and the workload and builds a CostModel. Every operation must
// target a collection present in stats.
func New(stats model.Statistics, segments [][]*model.Operation, cfg model.ResourceConfig, opts ...Option) (*CostModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(segments) != cfg.SkewIntervals {
		return nil, errors.InvalidConfiguration("skew_intervals",
			"workload is segmented into a different number of intervals")
	}

	opCount := 0
	for _, segment := range segments {
		for _, op := range segment {
			if _, ok := stats[op.Collection]; !ok {
				return nil, errors.UnknownCollection(op.Collection).
					WithDetail("op_type", string(op.Type))
			}
			opCount++
		}
	}

	m := &CostModel{
		stats:    stats,
		segments: segments,
		cfg:      cfg,
		opCount:  opCount,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ring == nil {
		m.ring = algorithm.NewShardRing(cfg.NodeCount, algorithm.DefaultVirtualNodes)
	}
	return m, nil
}

// Config returns the resource configuration the model evaluates against
func (m *CostModel) Config() model.ResourceConfig {
	return m.cfg
}

// OperationCount returns the number of operations in the workload
func (m *CostModel) OperationCount() int {
	return m.opCount
}

// OverallCost combines the three cost terms with the configured weights
func (m *CostModel) OverallCost(network, skew, disk float64) float64 {
	w := m.cfg.Weights
	return w.Network*network + w.Skew*skew + w.Disk*disk
}

// Evaluate validates d and computes its full cost breakdown
func (m *CostModel) Evaluate(d *model.Design) (*Result, error) {
	if d == nil {
		return nil, errors.InvalidDesign("", "design is nil")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	p := m.plan(d)
	bytes := m.DiskBytes(d)
	res := &Result{
		Network:    p.networkCost(),
		Skew:       p.skewCost(),
		Disk:       m.diskCost(bytes),
		DiskBytes:  bytes,
		Infeasible: bytes > m.cfg.MaxMemoryBytes,
	}
	res.Overall = m.OverallCost(res.Network, res.Skew, res.Disk)

	if ce := m.logger.Check(zap.DebugLevel, "Design evaluated"); ce != nil {
		ce.Write(
			zap.Strings("sharded", shardedCollections(d)),
			zap.Float64("network", res.Network),
			zap.Float64("skew", res.Skew),
			zap.Float64("disk", res.Disk),
			zap.String("footprint", humanize.IBytes(uint64(bytes))),
			zap.Bool("infeasible", res.Infeasible),
			zap.Float64("overall", res.Overall))
	}
	return res, nil
}

func shardedCollections(d *model.Design) []string {
	names := make([]string, 0, len(d.ShardKeys))
	for c := range d.ShardKeys {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// Evaluate is the stateless form of CostModel.Evaluate
func Evaluate(d *model.Design, stats model.Statistics, segments [][]*model.Operation, cfg model.ResourceConfig) (*Result, error) {
	m, err := New(stats, segments, cfg)
	if err != nil {
		return nil, err
	}
	return m.Evaluate(d)
}
