package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/devrev/designer/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GRPCServerConfig holds gRPC server configuration
type GRPCServerConfig struct {
	Host            string
	Port            int
	MaxConnections  int
	ShutdownTimeout time.Duration
	// RateLimit caps requests per second, 0 for no limit.
	RateLimit float64
	RateBurst int
}

// GRPCServer serves the evaluator over gRPC
type GRPCServer struct {
	config  *GRPCServerConfig
	server  *grpc.Server
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGRPCServer creates a gRPC server with the evaluator registered
func NewGRPCServer(cfg *GRPCServerConfig, evaluator EvaluatorServer, m *metrics.Metrics, logger *zap.Logger) *GRPCServer {
	s := &GRPCServer{
		config:  cfg,
		metrics: m,
		logger:  logger,
	}

	interceptors := []grpc.UnaryServerInterceptor{
		requestIDInterceptor,
		s.unaryInterceptor,
		recoveryInterceptor(logger),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		interceptors = append(interceptors, rateLimitInterceptor(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst), logger))
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024), // 10MB
		grpc.MaxSendMsgSize(10 * 1024 * 1024), // 10MB
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	if cfg.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)))
	}

	s.server = grpc.NewServer(opts...)
	RegisterEvaluatorServer(s.server, evaluator)
	return s
}

// unaryInterceptor records every request and turns context errors into their
// gRPC status
func (s *GRPCServer) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = status.FromContextError(ctxErr).Err()
		}
	}

	code := status.Code(err)
	if s.metrics != nil {
		s.metrics.RecordGRPCRequest(info.FullMethod, code.String(), time.Since(start))
	}
	s.logger.Debug("gRPC request served",
		zap.String("method", info.FullMethod),
		zap.String("request_id", RequestID(ctx)),
		zap.String("code", code.String()),
		zap.Duration("duration", time.Since(start)))
	return resp, err
}

// Serve accepts connections on lis until the server is stopped
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// ListenAndServe listens on the configured address and serves
func (s *GRPCServer) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop drains in-flight requests, forcing the server down after the shutdown
// timeout
func (s *GRPCServer) Stop() {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(timeout):
		s.logger.Warn("gRPC server stop timeout, forcing shutdown")
		s.server.Stop()
	}
}
