package common

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"goreels/internal/logging"
)

// RequestIDKey is the gRPC metadata key carrying the caller's request id.
const RequestIDKey = "x-request-id"

// Health probes are too chatty to log.
var quietMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

// RequestIDInterceptor puts the incoming x-request-id (or a fresh one) on the
// context so every log line of the call carries it.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDKey); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = logging.NewRequestID()
		}
		return handler(logging.ContextWithRequestID(ctx, id), req)
	}
}

// LoggingInterceptor logs method, duration and error of every unary call.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("grpc call failed")
		} else if !quietMethods[info.FullMethod] {
			logging.Ctx(ctx).Debug().Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("grpc call")
		}
		return resp, err
	}
}
