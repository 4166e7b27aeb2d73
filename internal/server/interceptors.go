package server

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDKey is the metadata key carrying a request id
const RequestIDKey = "x-request-id"

type requestIDContextKey struct{}

// RequestID returns the id of the request being served, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// requestIDInterceptor keeps the caller's request id or assigns a new one, and
// echoes it in the response header
func requestIDInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDKey); len(values) > 0 {
			id = values[0]
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, id))
	return handler(context.WithValue(ctx, requestIDContextKey{}, id), req)
}

// recoveryInterceptor turns a handler panic into an Internal status
func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("request_id", RequestID(ctx)),
					zap.String("method", info.FullMethod))
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// rateLimitInterceptor rejects requests beyond the limiter's rate
func rateLimitInterceptor(limiter *rate.Limiter, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !limiter.Allow() {
			logger.Warn("Rate limit exceeded",
				zap.String("method", info.FullMethod),
				zap.String("request_id", RequestID(ctx)))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
