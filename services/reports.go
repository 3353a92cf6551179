package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/go-redis/redis/v8"
)

// LastReportKey holds the most recent upload summary in Redis.
const LastReportKey = "catalog:import:last"

// ReportStore keeps the summary of the most recent upload.
type ReportStore interface {
	Save(ctx context.Context, rec models.ImportRecord) error
	// Last returns nil, nil when no upload has finished yet.
	Last(ctx context.Context) (*models.ImportRecord, error)
}

// MemoryReportStore keeps the last report in process memory.
type MemoryReportStore struct {
	mu   sync.RWMutex
	last *models.ImportRecord
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{}
}

func (m *MemoryReportStore) Save(ctx context.Context, rec models.ImportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &rec
	return nil
}

func (m *MemoryReportStore) Last(ctx context.Context) (*models.ImportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil, nil
	}
	rec := *m.last
	return &rec, nil
}

// RedisReportStore shares the last report between replicas.
type RedisReportStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisReportStore(rdb *redis.Client) *RedisReportStore {
	return &RedisReportStore{redis: rdb, ttl: 7 * 24 * time.Hour}
}

func (r *RedisReportStore) Save(ctx context.Context, rec models.ImportRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal import record: %w", err)
	}
	if err := r.redis.Set(ctx, LastReportKey, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("store import record: %w", err)
	}
	return nil
}

func (r *RedisReportStore) Last(ctx context.Context) (*models.ImportRecord, error) {
	val, err := r.redis.Get(ctx, LastReportKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load import record: %w", err)
	}
	var rec models.ImportRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("parse import record: %w", err)
	}
	return &rec, nil
}
