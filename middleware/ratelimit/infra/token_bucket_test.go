package infra

import (
	"context"
	"testing"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_BurstThenReject(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb, err := NewTokenBucket(1, 2, WithBucketClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	dec, _ := tb.Decide(ctx, "k")
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(2), dec.Limit)
	assert.Equal(t, int64(1), dec.Remaining)
	assert.Equal(t, now.Add(time.Second), dec.ResetAt)

	dec, _ = tb.Decide(ctx, "k")
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)

	dec, _ = tb.Decide(ctx, "k")
	assert.False(t, dec.Allowed)
	assert.Equal(t, time.Second, dec.RetryAfter)
	assert.Equal(t, domain.DefaultMessage, dec.Message)
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb, err := NewTokenBucket(10, 1, WithBucketClock(func() time.Time { return now }))
	require.NoError(t, err)

	dec, _ := tb.Decide(context.Background(), "k")
	require.True(t, dec.Allowed)
	dec, _ = tb.Decide(context.Background(), "k")
	require.False(t, dec.Allowed)

	now = now.Add(200 * time.Millisecond)
	dec, _ = tb.Decide(context.Background(), "k")
	assert.True(t, dec.Allowed)
}

func TestTokenBucket_CleanupRemovesIdleEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb, err := NewTokenBucket(10, 1,
		WithIdleTTL(time.Minute),
		WithCleanupEvery(0),
		WithBucketClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	_, _ = tb.Decide(context.Background(), "k")
	require.Equal(t, 1, tb.Len())

	now = now.Add(2 * time.Minute)
	tb.Cleanup()
	assert.Equal(t, 0, tb.Len())
}

func TestNewTokenBucket_RejectsInvalidRate(t *testing.T) {
	_, err := NewTokenBucket(0, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = NewTokenBucket(1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
