package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prepworks/examgate-backend/internal/config"
	"github.com/prepworks/examgate-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisViolationQueue pushes violation heartbeats onto the persist queue
// and fans them out to the exam's live monitor channel.
type RedisViolationQueue struct {
	rdb *redis.Client
}

// NewRedisViolationQueue creates a new RedisViolationQueue.
func NewRedisViolationQueue(rdb *redis.Client) *RedisViolationQueue {
	return &RedisViolationQueue{rdb: rdb}
}

// Push enqueues the event for batch persistence and publishes it for any
// attached monitors. The publish is best-effort; only the queue write can
// fail the call.
func (q *RedisViolationQueue) Push(ctx context.Context, ev model.ViolationEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}

	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	_ = q.rdb.Publish(ctx, channel, raw).Err()

	return nil
}
