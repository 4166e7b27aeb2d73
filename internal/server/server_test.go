package server_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/designer/internal/metrics"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/server"
	"github.com/devrev/designer/internal/service"
	"github.com/devrev/designer/internal/stats"
	"github.com/devrev/designer/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newEvaluationService(t *testing.T) *service.EvaluationService {
	t.Helper()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	orders := make([]bson.D, 40)
	for i := range orders {
		orders[i] = bson.D{{Key: "_id", Value: int32(i)}, {Key: "customer", Value: int32(i % 20)}}
	}
	var ops []model.Operation
	for i := 0; i < 10; i++ {
		ops = append(ops, model.Operation{
			Collection:   "orders",
			Type:         model.OpTypeQuery,
			Predicates:   map[string]model.PredicateType{"customer": model.PredicateEquality},
			QueryContent: []bson.D{{{Key: "customer", Value: int32(i)}}},
			QueryTime:    at.Add(time.Duration(i) * time.Second),
			RespTime:     at.Add(time.Duration(i) * time.Second),
		})
	}
	src := &store.MemorySource{
		Trace:   []model.Session{{SessionID: 1, StartTime: at, EndTime: at.Add(10 * time.Second), Operations: ops}},
		Dataset: map[string][]bson.D{"orders": orders},
	}

	builder := service.NewSnapshotBuilder(&service.SnapshotBuilderConfig{
		Stats: stats.Options{SampleRate: 100},
	}, src, src, nil, zap.NewNop())
	snap, err := builder.Build(context.Background(), model.ResourceConfig{
		MaxMemoryBytes:  1 << 20,
		SkewIntervals:   1,
		AddressSizeBits: 64,
		NodeCount:       2,
		Weights:         model.EqualWeights(),
	})
	require.NoError(t, err)

	svc := service.NewEvaluationService(&service.EvaluationConfig{Workers: 2}, snap, nil, zap.NewNop())
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func startServer(t *testing.T, m *metrics.Metrics) *server.EvaluatorClient {
	t.Helper()
	return startServerWith(t, &server.GRPCServerConfig{ShutdownTimeout: time.Second}, m)
}

func startServerWith(t *testing.T, cfg *server.GRPCServerConfig, m *metrics.Metrics) *server.EvaluatorClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	handler := server.NewEvaluatorHandler(newEvaluationService(t), zap.NewNop())
	srv := server.NewGRPCServer(cfg, handler, m, zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return server.NewEvaluatorClient(conn)
}

func TestEvaluator_Evaluate(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := startServer(t, m)
	ctx := context.Background()

	resp, err := client.Evaluate(ctx, &server.EvaluateRequest{Candidate: model.Candidate{
		Name:   "by-customer",
		Design: *model.NewDesign().AddShardKey("orders", []string{"customer"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, "by-customer", resp.Name)
	require.NotNil(t, resp.Result)
	assert.InDelta(t, 1.0, resp.Result.Network, 1e-9)
	assert.False(t, resp.Result.Infeasible)

	_, err = client.Evaluate(ctx, &server.EvaluateRequest{Candidate: model.Candidate{
		Name:   "self-embedded",
		Design: *model.NewDesign().SetDenormalizationParent("orders", "orders"),
	}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("/designer.v1.Evaluator/Evaluate", codes.OK.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("/designer.v1.Evaluator/Evaluate", codes.InvalidArgument.String())))
}

func TestEvaluator_EvaluateBatch(t *testing.T) {
	client := startServer(t, nil)

	resp, err := client.EvaluateBatch(context.Background(), &server.EvaluateBatchRequest{Candidates: []model.Candidate{
		{Name: "unsharded", Design: *model.NewDesign()},
		{Name: "by-customer", Design: *model.NewDesign().AddShardKey("orders", []string{"customer"})},
		{Name: "bad-index", Design: *model.NewDesign().AddIndex("orders", nil)},
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, "unsharded", resp.Outcomes[0].Name)
	assert.Equal(t, "by-customer", resp.Outcomes[1].Name)
	assert.Nil(t, resp.Outcomes[2].Result)
	assert.Contains(t, resp.Outcomes[2].Error, "index has no fields")
	assert.Equal(t, 1, resp.Best)

	_, err = client.EvaluateBatch(context.Background(), &server.EvaluateBatchRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEvaluator_SnapshotInfo(t *testing.T) {
	client := startServer(t, nil)

	info, err := client.SnapshotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, info.Collections)
	assert.Equal(t, 10, info.Operations)
	assert.Equal(t, 2, info.Config.NodeCount)
	assert.Equal(t, 1, info.QueryClasses)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetricsServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.SetClusterNodes(3)

	var notReady error = stderrors.New("snapshot not built")
	ms := server.NewMetricsServer(&server.MetricsServerConfig{Port: 0}, reg, func() error { return notReady }, zap.NewNop())
	h := ms.Handler()

	code, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"healthy"`)

	code, body = get(t, h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "snapshot not built")

	notReady = nil
	code, _ = get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, fmt.Sprintf("designer_cluster_nodes %d", 3))
}

func TestGRPCServer_RequestID(t *testing.T) {
	client := startServer(t, nil)

	var header metadata.MD
	_, err := client.SnapshotInfo(context.Background(), grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(server.RequestIDKey), 1)
	assert.NotEmpty(t, header.Get(server.RequestIDKey)[0])

	ctx := metadata.AppendToOutgoingContext(context.Background(), server.RequestIDKey, "req-42")
	header = nil
	_, err = client.SnapshotInfo(ctx, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(server.RequestIDKey))
}

func TestGRPCServer_RateLimit(t *testing.T) {
	client := startServerWith(t, &server.GRPCServerConfig{
		ShutdownTimeout: time.Second,
		RateLimit:       0.001,
		RateBurst:       1,
	}, nil)

	_, err := client.SnapshotInfo(context.Background())
	require.NoError(t, err)

	_, err = client.SnapshotInfo(context.Background())
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
