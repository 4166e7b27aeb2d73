package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devrev/designer/internal/costmodel"
	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype evaluator messages are encoded with
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec encodes gRPC messages as JSON, so plain Go structs can travel
// without generated protobuf types
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

// EvaluateRequest asks for the cost of one design
type EvaluateRequest struct {
	Candidate model.Candidate `json:"candidate"`
}

// EvaluateResponse carries the cost breakdown of one design
type EvaluateResponse struct {
	Name   string            `json:"name"`
	Result *costmodel.Result `json:"result"`
}

// EvaluateBatchRequest asks for the costs of several designs
type EvaluateBatchRequest struct {
	Candidates []model.Candidate `json:"candidates"`
}

// EvaluateBatchResponse lists outcomes in request order. Best is the index of
// the cheapest evaluated design, or -1.
type EvaluateBatchResponse struct {
	BatchID  string            `json:"batch_id"`
	Outcomes []service.Outcome `json:"outcomes"`
	Best     int               `json:"best"`
}

// SnapshotInfoRequest asks for a description of the loaded snapshot
type SnapshotInfoRequest struct{}

// SnapshotInfoResponse describes the snapshot designs are evaluated against
type SnapshotInfoResponse struct {
	Collections  []string             `json:"collections"`
	Operations   int                  `json:"operations"`
	Config       model.ResourceConfig `json:"config"`
	BuiltAtUnix  int64                `json:"built_at_unix"`
	QueryClasses int                  `json:"query_classes"`
}

// EvaluatorServer is the server API of designer.v1.Evaluator
type EvaluatorServer interface {
	Evaluate(context.Context, *EvaluateRequest) (*EvaluateResponse, error)
	EvaluateBatch(context.Context, *EvaluateBatchRequest) (*EvaluateBatchResponse, error)
	SnapshotInfo(context.Context, *SnapshotInfoRequest) (*SnapshotInfoResponse, error)
}

const evaluatorServiceName = "designer.v1.Evaluator"

// RegisterEvaluatorServer registers srv with s
func RegisterEvaluatorServer(s grpc.ServiceRegistrar, srv EvaluatorServer) {
	s.RegisterService(&evaluatorServiceDesc, srv)
}

var evaluatorServiceDesc = grpc.ServiceDesc{
	ServiceName: evaluatorServiceName,
	HandlerType: (*EvaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "EvaluateBatch", Handler: evaluateBatchHandler},
		{MethodName: "SnapshotInfo", Handler: snapshotInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "designer/v1/evaluator",
}

func fullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", evaluatorServiceName, name)
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EvaluateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Evaluate")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EvaluatorServer).Evaluate(ctx, req.(*EvaluateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func evaluateBatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EvaluateBatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluatorServer).EvaluateBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("EvaluateBatch")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EvaluatorServer).EvaluateBatch(ctx, req.(*EvaluateBatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SnapshotInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluatorServer).SnapshotInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("SnapshotInfo")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EvaluatorServer).SnapshotInfo(ctx, req.(*SnapshotInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// EvaluatorHandler serves designer.v1.Evaluator from an EvaluationService
type EvaluatorHandler struct {
	service *service.EvaluationService
	logger  *zap.Logger
}

// NewEvaluatorHandler creates a new evaluator handler
func NewEvaluatorHandler(svc *service.EvaluationService, logger *zap.Logger) *EvaluatorHandler {
	return &EvaluatorHandler{
		service: svc,
		logger:  logger,
	}
}

// Evaluate handles single design evaluation
func (h *EvaluatorHandler) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	h.logger.Debug("Evaluate request received", zap.String("design", req.Candidate.Name))

	res, err := h.service.Evaluate(ctx, req.Candidate)
	if err != nil {
		h.logger.Debug("Evaluation rejected",
			zap.String("design", req.Candidate.Name),
			zap.Error(err))
		return nil, errors.ToGRPCError(err)
	}
	return &EvaluateResponse{Name: req.Candidate.Name, Result: res}, nil
}

// EvaluateBatch handles batch evaluation. Per-design failures are reported in
// the outcomes; only cancellation fails the whole call.
func (h *EvaluatorHandler) EvaluateBatch(ctx context.Context, req *EvaluateBatchRequest) (*EvaluateBatchResponse, error) {
	if len(req.Candidates) == 0 {
		return nil, errors.ToGRPCError(errors.InvalidConfiguration("candidates", "must not be empty"))
	}

	batch, err := h.service.EvaluateBatch(ctx, req.Candidates)
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}
	return &EvaluateBatchResponse{
		BatchID:  batch.ID,
		Outcomes: batch.Outcomes,
		Best:     batch.Best(),
	}, nil
}

// SnapshotInfo describes the current snapshot
func (h *EvaluatorHandler) SnapshotInfo(ctx context.Context, req *SnapshotInfoRequest) (*SnapshotInfoResponse, error) {
	snap := h.service.Snapshot()
	return &SnapshotInfoResponse{
		Collections:  snap.Stats.Names(),
		Operations:   snap.OperationCount(),
		Config:       snap.Config,
		BuiltAtUnix:  snap.BuiltAt.Unix(),
		QueryClasses: len(snap.Classes),
	}, nil
}

// EvaluatorClient calls a remote designer.v1.Evaluator
type EvaluatorClient struct {
	cc grpc.ClientConnInterface
}

// NewEvaluatorClient creates a client over cc
func NewEvaluatorClient(cc grpc.ClientConnInterface) *EvaluatorClient {
	return &EvaluatorClient{cc: cc}
}

func (c *EvaluatorClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}

// Evaluate scores one design remotely
func (c *EvaluatorClient) Evaluate(ctx context.Context, in *EvaluateRequest, opts ...grpc.CallOption) (*EvaluateResponse, error) {
	out := new(EvaluateResponse)
	if err := c.invoke(ctx, "Evaluate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateBatch scores several designs remotely
func (c *EvaluatorClient) EvaluateBatch(ctx context.Context, in *EvaluateBatchRequest, opts ...grpc.CallOption) (*EvaluateBatchResponse, error) {
	out := new(EvaluateBatchResponse)
	if err := c.invoke(ctx, "EvaluateBatch", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SnapshotInfo describes the remote snapshot
func (c *EvaluatorClient) SnapshotInfo(ctx context.Context, opts ...grpc.CallOption) (*SnapshotInfoResponse, error) {
	out := new(SnapshotInfoResponse)
	if err := c.invoke(ctx, "SnapshotInfo", &SnapshotInfoRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
