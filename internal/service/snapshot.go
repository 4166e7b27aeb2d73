package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/designer/internal/costmodel"
	"github.com/devrev/designer/internal/metrics"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/stats"
	"github.com/devrev/designer/internal/store"
	"github.com/devrev/designer/internal/workload"
	"github.com/dustin/go-humanize"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot is the frozen input every evaluation reads: the trace, its segments,
// the collection statistics and the cost model built over them. Nothing in a
// Snapshot is modified after Build returns.
type Snapshot struct {
	Sessions []model.Session
	Segments [][]*model.Operation
	Stats    model.Statistics
	Classes  []workload.QueryClass
	Config   model.ResourceConfig
	Model    *costmodel.CostModel
	BuiltAt  time.Time
}

// OperationCount returns the number of traced operations
func (s *Snapshot) OperationCount() int {
	return s.Model.OperationCount()
}

// WithNodeCount returns a copy of the snapshot whose cost model targets
// nodeCount nodes. Trace and statistics are shared, not copied.
func (s *Snapshot) WithNodeCount(nodeCount, virtualNodes int, logger *zap.Logger) (*Snapshot, error) {
	rc := s.Config
	rc.NodeCount = nodeCount
	cm, err := costmodel.New(s.Stats, s.Segments, rc,
		costmodel.WithLogger(logger),
		costmodel.WithVirtualNodes(virtualNodes))
	if err != nil {
		return nil, err
	}

	next := *s
	next.Config = rc
	next.Model = cm
	next.BuiltAt = time.Now()
	return &next, nil
}

// SnapshotBuilderConfig holds snapshot builder configuration
type SnapshotBuilderConfig struct {
	Stats        stats.Options
	Parallelism  int
	VirtualNodes int
}

// SnapshotBuilder loads the workload and dataset once and derives everything
// the cost model needs from them
type SnapshotBuilder struct {
	cfg      *SnapshotBuilderConfig
	sessions store.SessionSource
	sampler  store.DocumentSampler
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSnapshotBuilder creates a new snapshot builder
func NewSnapshotBuilder(
	cfg *SnapshotBuilderConfig,
	sessions store.SessionSource,
	sampler store.DocumentSampler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SnapshotBuilder {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &SnapshotBuilder{
		cfg:      cfg,
		sessions: sessions,
		sampler:  sampler,
		metrics:  m,
		logger:   logger,
	}
}

// Build reads the trace and samples every collection, computes statistics and
// segments, and returns a snapshot ready for evaluation against rc
func (b *SnapshotBuilder) Build(ctx context.Context, rc model.ResourceConfig) (*Snapshot, error) {
	start := time.Now()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	engine, err := stats.NewEngine(b.cfg.Stats, b.logger)
	if err != nil {
		return nil, err
	}

	sessions, err := b.sessions.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	if err := model.ValidateSessions(sessions); err != nil {
		return nil, err
	}

	statistics, err := b.sample(ctx, engine)
	if err != nil {
		return nil, err
	}
	if err := engine.ProcessWorkload(statistics, model.Flatten(sessions)); err != nil {
		return nil, err
	}

	segments, err := workload.Segment(sessions, rc.SkewIntervals)
	if err != nil {
		return nil, err
	}

	classifier := workload.NewQueryClassifier()
	classifier.AddAll(sessions)

	cm, err := costmodel.New(statistics, segments, rc,
		costmodel.WithLogger(b.logger),
		costmodel.WithVirtualNodes(b.cfg.VirtualNodes))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Sessions: sessions,
		Segments: segments,
		Stats:    statistics,
		Classes:  classifier.Histogram(),
		Config:   rc,
		Model:    cm,
		BuiltAt:  time.Now(),
	}

	duration := time.Since(start)
	if b.metrics != nil {
		b.metrics.RecordSnapshot(duration, len(statistics), cm.OperationCount(), rc.SkewIntervals)
		b.metrics.SetClusterNodes(rc.NodeCount)
	}
	b.logger.Info("Snapshot built",
		zap.Int("sessions", len(sessions)),
		zap.String("operations", humanize.Comma(int64(cm.OperationCount()))),
		zap.Int("collections", len(statistics)),
		zap.Int("query_classes", len(snap.Classes)),
		zap.Int("intervals", rc.SkewIntervals),
		zap.Int("nodes", rc.NodeCount),
		zap.Duration("duration", duration))

	return snap, nil
}

// sample collects statistics of every dataset collection, several collections
// at a time
func (b *SnapshotBuilder) sample(ctx context.Context, engine *stats.Engine) (model.Statistics, error) {
	names, err := b.sampler.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	results := make([]*model.CollectionStat, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Parallelism)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			collector := engine.NewCollector(name)
			err := b.sampler.Documents(gctx, name, func(doc bson.D) error {
				collector.Add(doc)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to sample %s: %w", name, err)
			}
			results[i] = collector.Finish()

			b.logger.Debug("Collection sampled",
				zap.String("collection", name),
				zap.Int64("documents", results[i].TupleCount),
				zap.String("avg_doc_size", humanize.IBytes(uint64(results[i].AvgDocSize))))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	statistics := make(model.Statistics, len(names))
	for _, cs := range results {
		statistics[cs.Name] = cs
	}
	return statistics, nil
}
