package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/designer/internal/costmodel"
	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/metrics"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/util/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the evaluation of one candidate of a batch. Exactly one of Result
// and Err is set.
type Outcome struct {
	Name   string            `json:"name" yaml:"name"`
	Result *costmodel.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Err    error             `json:"-" yaml:"-"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResult holds the outcomes of a batch, in the order the candidates were given
type BatchResult struct {
	ID       string        `json:"id" yaml:"id"`
	Outcomes []Outcome     `json:"outcomes" yaml:"outcomes"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Best returns the index of the successful outcome with the lowest overall
// cost, preferring feasible designs and the earliest candidate on ties. It
// returns -1 when no candidate was evaluated.
func (b *BatchResult) Best() int {
	best := -1
	for i, o := range b.Outcomes {
		if o.Result == nil {
			continue
		}
		if best < 0 || better(o.Result, b.Outcomes[best].Result) {
			best = i
		}
	}
	return best
}

func better(a, b *costmodel.Result) bool {
	if a.Infeasible != b.Infeasible {
		return !a.Infeasible
	}
	return a.Overall < b.Overall
}

// EvaluationConfig holds evaluation service configuration
type EvaluationConfig struct {
	Workers         int
	QueueSize       int
	ShutdownTimeout time.Duration
}

// EvaluationService scores candidate designs against the current snapshot on
// a bounded worker pool
type EvaluationService struct {
	snapshot atomic.Pointer[Snapshot]
	pool     *workerpool.WorkerPool
	cfg      *EvaluationConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEvaluationService creates a new evaluation service over snap
func NewEvaluationService(
	cfg *EvaluationConfig,
	snap *Snapshot,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EvaluationService {
	poolCfg := &workerpool.Config{
		Name:       "evaluation",
		MaxWorkers: cfg.Workers,
		QueueSize:  cfg.QueueSize,
		Logger:     logger,
	}
	if m != nil {
		poolCfg.Observer = m
	}

	s := &EvaluationService{
		pool:    workerpool.NewWorkerPool(poolCfg),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
	s.snapshot.Store(snap)
	return s
}

// Snapshot returns the snapshot evaluations currently run against
func (s *EvaluationService) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// SetSnapshot swaps in a new snapshot. Evaluations already running finish
// against the snapshot they started with.
func (s *EvaluationService) SetSnapshot(snap *Snapshot) {
	s.snapshot.Store(snap)
	s.logger.Info("Snapshot replaced",
		zap.Int("operations", snap.OperationCount()),
		zap.Time("built_at", snap.BuiltAt))
}

// Evaluate scores a single candidate on the calling goroutine
func (s *EvaluationService) Evaluate(ctx context.Context, c model.Candidate) (*costmodel.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled("evaluation canceled", err)
	}
	return s.evaluate(s.snapshot.Load(), c)
}

func (s *EvaluationService) evaluate(snap *Snapshot, c model.Candidate) (*costmodel.Result, error) {
	start := time.Now()
	res, err := snap.Model.Evaluate(&c.Design)
	if s.metrics != nil {
		switch {
		case err == nil:
			s.metrics.RecordEvaluation(metrics.StatusOK, time.Since(start), res.Infeasible)
			if c.Name != "" {
				s.metrics.SetLastOverallCost(c.Name, res.Overall)
			}
		case errors.GetCode(err) == errors.ErrCodeInvalidDesign,
			errors.GetCode(err) == errors.ErrCodeUnknownCollection:
			s.metrics.RecordEvaluation(metrics.StatusInvalid, time.Since(start), false)
		default:
			s.metrics.RecordEvaluation(metrics.StatusError, time.Since(start), false)
		}
	}
	return res, err
}

// EvaluateBatch scores every candidate and returns the outcomes in input order.
// Cancellation is observed between candidates: a design already being scored
// completes, and those not yet started get a Canceled error. The batch is
// returned together with the cancellation error in that case.
func (s *EvaluationService) EvaluateBatch(ctx context.Context, candidates []model.Candidate) (*BatchResult, error) {
	start := time.Now()
	batch := &BatchResult{
		ID:       uuid.New().String(),
		Outcomes: make([]Outcome, len(candidates)),
	}
	if s.metrics != nil {
		s.metrics.RecordBatch()
	}

	snap := s.snapshot.Load()
	var wg sync.WaitGroup

	for i := range candidates {
		i := i
		batch.Outcomes[i].Name = candidates[i].Name

		wg.Add(1)
		err := s.pool.Submit(ctx, workerpool.Task{
			ID: fmt.Sprintf("%s/%d", batch.ID, i),
			Run: func(taskCtx context.Context) error {
				defer wg.Done()
				if err := taskCtx.Err(); err != nil {
					batch.Outcomes[i].Err = errors.Canceled("evaluation canceled", err)
					s.recordCanceled()
					return nil
				}
				res, err := s.evaluate(snap, candidates[i])
				batch.Outcomes[i].Result = res
				batch.Outcomes[i].Err = err
				return err
			},
		})
		if err != nil {
			wg.Done()
			batch.Outcomes[i].Err = err
			if errors.GetCode(err) == errors.ErrCodeCanceled {
				s.recordCanceled()
			}
		}
	}
	wg.Wait()

	canceled := 0
	for i := range batch.Outcomes {
		o := &batch.Outcomes[i]
		if o.Result == nil && o.Err == nil {
			o.Err = errors.InternalError(fmt.Sprintf("evaluation of %q aborted", o.Name), nil)
		}
		if o.Err != nil {
			o.Error = o.Err.Error()
			if errors.GetCode(o.Err) == errors.ErrCodeCanceled {
				canceled++
			}
		}
	}
	batch.Duration = time.Since(start)

	s.logger.Info("Batch evaluated",
		zap.String("batch_id", batch.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("canceled", canceled),
		zap.Duration("duration", batch.Duration))

	if canceled > 0 {
		return batch, errors.Canceled(
			fmt.Sprintf("batch %s canceled with %d of %d candidates unevaluated", batch.ID, canceled, len(candidates)),
			ctx.Err())
	}
	return batch, nil
}

func (s *EvaluationService) recordCanceled() {
	if s.metrics != nil {
		s.metrics.RecordEvaluation(metrics.StatusCanceled, 0, false)
	}
}

// PoolStats returns the evaluation pool counters
func (s *EvaluationService) PoolStats() workerpool.Stats {
	return s.pool.Stats()
}

// Stop stops the worker pool
func (s *EvaluationService) Stop() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return s.pool.Stop(timeout)
}
