package cli

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/devrev/designer/internal/cluster"
	"github.com/devrev/designer/internal/metrics"
	"github.com/devrev/designer/internal/server"
	"github.com/devrev/designer/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve design evaluations over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	cfg := a.cfg

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var ready atomic.Bool
	if cfg.Metrics.Enabled {
		ms := server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, reg, func() error {
			if !ready.Load() {
				return stderrors.New("snapshot not built")
			}
			return nil
		}, logger)
		if err := ms.Start(); err != nil {
			return err
		}
		defer ms.Stop()
	}

	nodeChanges := make(chan int, 1)
	if cfg.Cluster.Enabled {
		membership, err := cluster.Join(&cluster.Config{
			NodeName:  cfg.Cluster.NodeName,
			BindAddr:  cfg.Cluster.BindAddr,
			BindPort:  cfg.Cluster.BindPort,
			SeedNodes: cfg.Cluster.SeedNodes,
			Meta:      cluster.NodeMeta{Role: "designer"},
		}, func(nodes int) {
			select {
			case <-nodeChanges:
			default:
			}
			nodeChanges <- nodes
		}, logger)
		if err != nil {
			return err
		}
		defer membership.Leave(5 * time.Second)

		// Give gossip a moment to converge before the node count is fixed.
		select {
		case <-time.After(cfg.Cluster.JoinWait):
		case <-ctx.Done():
			return ctx.Err()
		}
		cfg.CostModel.NodeCount = membership.NodeCount()
		logger.Info("Node count discovered from cluster", zap.Int("nodes", cfg.CostModel.NodeCount))
	}

	snap, err := a.snapshot(ctx, m)
	if err != nil {
		return err
	}

	svc := service.NewEvaluationService(&service.EvaluationConfig{
		Workers:         cfg.Evaluation.Workers,
		QueueSize:       cfg.Evaluation.QueueSize,
		ShutdownTimeout: cfg.Evaluation.ShutdownTimeout,
	}, snap, m, logger)
	defer svc.Stop()

	if cfg.Cluster.Enabled {
		go a.followNodeCount(ctx, svc, m, nodeChanges)
	}

	grpcServer := server.NewGRPCServer(&server.GRPCServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MaxConnections:  cfg.Server.MaxConnections,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
	}, server.NewEvaluatorHandler(svc, logger), m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- grpcServer.ListenAndServe()
	}()
	ready.Store(true)

	select {
	case err := <-serverErrors:
		if err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			logger.Error("Server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	}

	ready.Store(false)
	grpcServer.Stop()
	logger.Info("Designer server stopped")
	return nil
}

// followNodeCount re-targets the snapshot whenever cluster membership changes
func (a *app) followNodeCount(ctx context.Context, svc *service.EvaluationService, m *metrics.Metrics, changes <-chan int) {
	for {
		select {
		case <-ctx.Done():
			return
		case nodes := <-changes:
			current := svc.Snapshot()
			if nodes <= 0 || nodes == current.Config.NodeCount {
				continue
			}
			next, err := current.WithNodeCount(nodes, a.cfg.CostModel.VirtualNodes, a.logger)
			if err != nil {
				a.logger.Error("Failed to re-target snapshot", zap.Int("nodes", nodes), zap.Error(err))
				continue
			}
			svc.SetSnapshot(next)
			m.SetClusterNodes(nodes)
			a.logger.Info("Node count changed", zap.Int("nodes", nodes))
		}
	}
}
