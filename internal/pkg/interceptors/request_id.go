// Package interceptors carries request ids across the admin gRPC listener
// and its clients.
package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Header names shared by HTTP requests and gRPC metadata.
const (
	HeaderRequestID      = "x-request-id"
	HeaderIdempotencyKey = "x-idempotency-key"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	idempotencyKey
)

// UnaryServerInterceptor stores the caller's x-request-id and
// x-idempotency-key in the context, minting a request id when the caller
// sent none, and echoes the request id in the response header.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := incoming(ctx, HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		if key := incoming(ctx, HeaderIdempotencyKey); key != "" {
			ctx = context.WithValue(ctx, idempotencyKey, key)
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(HeaderRequestID, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.DebugContext(ctx, "grpc call",
			"method", info.FullMethod,
			"request_id", requestID,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}

// UnaryClientInterceptor forwards the request and idempotency ids found in
// ctx to the server.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(ContextWithPropagatedID(ctx), method, req, reply, cc, opts...)
	}
}

// RequestID returns the request id stored by UnaryServerInterceptor or
// WithRequestID, or "" when there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey).(string)
	return key
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

// ContextWithPropagatedID copies the ids in ctx into the outgoing metadata.
func ContextWithPropagatedID(ctx context.Context) context.Context {
	if id := RequestID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, HeaderRequestID, id)
	}
	if key := IdempotencyKey(ctx); key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, HeaderIdempotencyKey, key)
	}
	return ctx
}

func incoming(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
