package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dirtyDriversKey = "sppg:drivers:stats_dirty"

// DriverStatsQueue tracks drivers whose delivery outcomes changed since the last recomputation.
type DriverStatsQueue interface {
	MarkDirty(ctx context.Context, driverID uuid.UUID) error
	// Drain removes and returns up to max pending drivers.
	Drain(ctx context.Context, max int) ([]uuid.UUID, error)
}

// NewRedisClient creates a new Redis client and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type redisQueue struct {
	client *redis.Client
}

func NewRedisDriverStatsQueue(client *redis.Client) DriverStatsQueue {
	return &redisQueue{client: client}
}

func (q *redisQueue) MarkDirty(ctx context.Context, driverID uuid.UUID) error {
	return q.client.SAdd(ctx, dirtyDriversKey, driverID.String()).Err()
}

func (q *redisQueue) Drain(ctx context.Context, max int) ([]uuid.UUID, error) {
	members, err := q.client.SPopN(ctx, dirtyDriversKey, int64(max)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type memoryQueue struct {
	mu    sync.Mutex
	dirty map[uuid.UUID]struct{}
}

// NewMemoryDriverStatsQueue is the in-process queue used when Redis is not configured.
func NewMemoryDriverStatsQueue() DriverStatsQueue {
	return &memoryQueue{dirty: make(map[uuid.UUID]struct{})}
}

func (q *memoryQueue) MarkDirty(_ context.Context, driverID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dirty[driverID] = struct{}{}
	return nil
}

func (q *memoryQueue) Drain(_ context.Context, max int) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(q.dirty))
	for id := range q.dirty {
		if len(ids) == max {
			break
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		delete(q.dirty, id)
	}
	return ids, nil
}
