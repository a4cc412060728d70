package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/circles-api/internal/config"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisScoreCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisScoreCache(client, ttl, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func profile(income, expenses, savings string, history ...string) domain.FinancialProfile {
	return domain.FinancialProfile{
		Income:        decimal.RequireFromString(income),
		Expenses:      decimal.RequireFromString(expenses),
		Savings:       decimal.RequireFromString(savings),
		CreditHistory: history,
	}
}

func TestProfileKey(t *testing.T) {
	t.Parallel()

	base := ProfileKey(profile("3000", "1500", "600", "a", "b"))
	assert.Contains(t, base, keyPrefix)

	assert.Equal(t, base, ProfileKey(profile("3000", "1500", "600", "a", "b")))
	assert.Equal(t, base, ProfileKey(profile("3000.00", "1500.0", "600", "a", "b")))

	assert.NotEqual(t, base, ProfileKey(profile("3001", "1500", "600", "a", "b")))
	assert.NotEqual(t, base, ProfileKey(profile("3000", "1500", "600", "a")))
	assert.NotEqual(t, base, ProfileKey(profile("3000", "1500", "600", "ab")))
	assert.NotEqual(t,
		ProfileKey(profile("3000", "1500", "600", "ab", "")),
		ProfileKey(profile("3000", "1500", "600", "a", "b")))
}

func TestRedisScoreCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()
	key := ProfileKey(profile("3000", "1500", "600"))

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, key, 318))
	score, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 318, score)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "entry expires after ttl")
}

func TestRedisScoreCache_MalformedValueIsAMiss(t *testing.T) {
	t.Parallel()

	c, mr := newRedisCache(t, 0)
	require.NoError(t, mr.Set("circles:score:bad", "not-a-number"))

	_, found, err := c.Get(context.Background(), "circles:score:bad")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisScoreCache_ServerDown(t *testing.T) {
	t.Parallel()

	c, mr := newRedisCache(t, 0)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", 1))
}

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var c ScoreCache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", 500))
	_, found, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}
