package cache

import (
	"context"
	"testing"
	"time"

	"certverify-backend/internal/application/publication"
	"certverify-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisBatchStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisBatchStore(rdb)
}

func sampleBatch() *publication.Batch {
	at := time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC)
	return &publication.Batch{
		ID:       uuid.New(),
		IssuerID: uuid.New(),
		Items: []publication.Item{
			{CertificateID: uuid.New(), CertificateNumber: "CERT-1", FingerprintHash: "0xaa"},
			{CertificateID: uuid.New(), CertificateNumber: "CERT-2", FingerprintHash: "0xbb"},
		},
		PreparedAt: at,
		ExpiresAt:  at.Add(time.Hour),
	}
}

func TestRedisBatchStore_SaveLoadDelete(t *testing.T) {
	mr, s := setupRedis(t)
	ctx := context.Background()
	b := sampleBatch()

	require.NoError(t, s.Save(ctx, b, time.Hour))
	assert.True(t, mr.Exists("publication:batch:"+b.ID.String()))

	got, err := s.Load(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.IssuerID, got.IssuerID)
	assert.Equal(t, b.Items, got.Items)
	assert.True(t, b.PreparedAt.Equal(got.PreparedAt))

	require.NoError(t, s.Delete(ctx, b.ID))
	_, err = s.Load(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisBatchStore_Expires(t *testing.T) {
	mr, s := setupRedis(t)
	ctx := context.Background()
	b := sampleBatch()
	require.NoError(t, s.Save(ctx, b, time.Minute))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisBatchStore_CorruptPayload(t *testing.T) {
	mr, s := setupRedis(t)
	id := uuid.New()
	require.NoError(t, mr.Set("publication:batch:"+id.String(), "{not json"))
	_, err := s.Load(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisBatchStore_WithCoordinator(t *testing.T) {
	_, s := setupRedis(t)
	ctx := context.Background()
	coord := &publication.Coordinator{Batches: s}
	assert.ErrorIs(t, coord.AbandonBatch(ctx, uuid.New(), uuid.New()), domain.ErrNotFound)

	b := sampleBatch()
	require.NoError(t, s.Save(ctx, b, time.Hour))
	require.NoError(t, coord.AbandonBatch(ctx, b.IssuerID, b.ID))
	_, err := s.Load(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
