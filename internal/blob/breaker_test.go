package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goreels/internal/config"
)

func breakerConfig() config.BlobConfig {
	return config.BlobConfig{
		BreakerMaxRequests: 1,
		BreakerInterval:    time.Minute,
		BreakerTimeout:     time.Minute,
		BreakerMinRequests: 3,
		BreakerFailRatio:   0.5,
	}
}

func TestBreaker_AbsentIsNotAFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := NewMockStore(ctrl)
	next.EXPECT().Exists(gomock.Any(), "gone").Return(false, nil).Times(5)

	b := NewBreaker(next, "test-absent", breakerConfig())
	for i := 0; i < 5; i++ {
		ok, err := b.Exists(context.Background(), "gone")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := NewMockStore(ctrl)
	next.EXPECT().Delete(gomock.Any(), "ref").Return(context.Canceled).Times(4)

	b := NewBreaker(next, "test-cancel", breakerConfig())
	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, b.Delete(context.Background(), "ref"), context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensOnTransportFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := NewMockStore(ctrl)
	next.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, errors.New("connection refused")).Times(3)

	b := NewBreaker(next, "test-open", breakerConfig())
	for i := 0; i < 3; i++ {
		_, err := b.Exists(context.Background(), "ref")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Rejected without reaching the wrapped store.
	_, err := b.Exists(context.Background(), "ref")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	obj, err := m.Upload(ctx, "clip.mp4", "video/mp4", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)

	ok, err := m.Exists(ctx, obj.Ref)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, obj.Ref))
	require.NoError(t, m.Delete(ctx, obj.Ref))

	ok, err = m.Exists(ctx, obj.Ref)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = m.Open(ctx, obj.Ref)
	assert.ErrorIs(t, err, ErrNotFound)
}
