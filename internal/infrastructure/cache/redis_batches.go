// Package cache holds Redis-backed ephemeral state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certverify-backend/internal/application/publication"
	"certverify-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const batchKeyPrefix = "publication:batch:"

// RedisBatchStore keeps prepared publication batches as JSON strings with a TTL, so any API
// replica can confirm a batch another replica prepared.
type RedisBatchStore struct {
	RDB *redis.Client
}

var _ publication.BatchStore = (*RedisBatchStore)(nil)

func NewRedisBatchStore(rdb *redis.Client) *RedisBatchStore {
	return &RedisBatchStore{RDB: rdb}
}

func batchKey(id uuid.UUID) string {
	return batchKeyPrefix + id.String()
}

func (s *RedisBatchStore) Save(ctx context.Context, b *publication.Batch, ttl time.Duration) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	return s.RDB.Set(ctx, batchKey(b.ID), payload, ttl).Err()
}

func (s *RedisBatchStore) Load(ctx context.Context, id uuid.UUID) (*publication.Batch, error) {
	raw, err := s.RDB.Get(ctx, batchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b publication.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &b, nil
}

func (s *RedisBatchStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.RDB.Del(ctx, batchKey(id)).Err()
}
