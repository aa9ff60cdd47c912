package common

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"goreels/internal/logging"
)

func TestRequestIDInterceptor_UsesIncomingID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDKey, "req-7"))

	var seen string
	_, err := RequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			seen = logging.RequestIDFromContext(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "req-7", seen)
}

func TestRequestIDInterceptor_GeneratesID(t *testing.T) {
	var seen string
	_, err := RequestIDInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			seen = logging.RequestIDFromContext(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Output: &buf})
	defer logging.Init(logging.Config{})

	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "pong", nil }
	resp, err := LoggingInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, ok)
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)
	assert.Empty(t, buf.String())

	boom := errors.New("boom")
	_, err = LoggingInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, boom })
	assert.Equal(t, boom, err)
	assert.Contains(t, buf.String(), "grpc call failed")
	assert.Contains(t, buf.String(), "boom")
}
