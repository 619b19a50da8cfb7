package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"certverify-backend/internal/infrastructure/database"
	"certverify-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCollect_NothingWired(t *testing.T) {
	r := (&Service{}).Collect(context.Background())
	assert.Equal(t, StatusIssue, r.Status)
	assert.Equal(t, DepDisconnected, r.Dependencies["database"].Status)
	assert.Equal(t, DepDisconnected, r.Dependencies["redis"].Status)
	assert.Equal(t, DepDisabled, r.Dependencies["ledger"].Status)
	assert.Equal(t, 0, r.Traffic.TotalRequests)
	assert.Equal(t, "100", r.Traffic.SuccessRate)
}

func TestCollect_WithSQLiteAndRedis(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	rdb := setupRedis(t)
	ctx := context.Background()
	now := time.UnixMilli(2_000_000)

	s := &Service{DB: GormPinger{DB: db}, Rdb: rdb, LedgerEnabled: true, Now: func() time.Time { return now }}
	r := s.Collect(ctx)
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, DepConnected, r.Dependencies["database"].Status)
	assert.NotNil(t, r.Dependencies["redis"].PingMs)
	assert.Equal(t, DepConfigured, r.Dependencies["ledger"].Status)

	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqErrors, "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyResTime, "150.5", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyResCount, "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyStartTime, "1000000", 0).Err())
	require.NoError(t, rdb.Set(ctx, middleware.KeyLastReq, `{"method":"POST","path":"/api/v1/verify"}`, 0).Err())

	r = s.Collect(ctx)
	assert.Equal(t, 10, r.Traffic.TotalRequests)
	assert.Equal(t, 2, r.Traffic.FailedCount)
	assert.Equal(t, 8, r.Traffic.SuccessCount)
	assert.Equal(t, "80.0", r.Traffic.SuccessRate)
	assert.Equal(t, "15.05", r.Traffic.AvgResponseTime)
	assert.Equal(t, int64(1000), r.Runtime.UptimeSeconds)
	assert.Equal(t, "POST", r.Traffic.LastRequest.(map[string]interface{})["method"])
}

func TestCollect_DatabaseError(t *testing.T) {
	s := &Service{DB: pingFunc(func(context.Context) error { return errors.New("refused") }), Rdb: setupRedis(t)}
	r := s.Collect(context.Background())
	assert.Equal(t, StatusIssue, r.Status)
	assert.Equal(t, DepError, r.Dependencies["database"].Status)
	assert.Nil(t, r.Dependencies["database"].PingMs)
}

func TestReset(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	s := &Service{Rdb: rdb, Now: func() time.Time { return time.UnixMilli(42_000) }}
	require.NoError(t, rdb.Set(ctx, middleware.KeyReqTotal, "5", 0).Err())
	require.NoError(t, rdb.LPush(ctx, middleware.KeyErrorLog, `{"message":"x"}`).Err())

	require.NoError(t, s.Reset(ctx))
	_, err := rdb.Get(ctx, middleware.KeyReqTotal).Result()
	assert.ErrorIs(t, err, redis.Nil)
	start, err := rdb.Get(ctx, middleware.KeyStartTime).Result()
	require.NoError(t, err)
	assert.Equal(t, "42000", start)

	assert.ErrorIs(t, (&Service{}).Reset(ctx), ErrRedisNotConfigured)
}

func TestRecentErrors(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	s := &Service{Rdb: rdb}

	got, err := s.RecentErrors(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, rdb.LPush(ctx, middleware.KeyErrorLog, `{"message":"old"}`, "garbage", `{"message":"new"}`).Err())
	got, err = s.RecentErrors(ctx, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0]["message"])
}
