// Package sentlog records which recipients a campaign has already been
// delivered to, so a retried run after a mid-run crash does not re-send to
// recipients the previous attempt reached. Entries expire with a TTL; the
// registry is an optimization, losing it only means duplicate sends on retry.
package sentlog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Log is consumed by the dispatch pipeline. A nil *RedisLog is a valid Log
// that records nothing and reports nothing as delivered.
type Log interface {
	MarkDelivered(ctx context.Context, campaignID, customerID int64) error
	Delivered(ctx context.Context, campaignID, customerID int64) (bool, error)
	Clear(ctx context.Context, campaignID int64) error
}

type RedisLog struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLog(rdb *redis.Client, ttl time.Duration) *RedisLog {
	return &RedisLog{rdb: rdb, ttl: ttl}
}

func key(campaignID int64) string {
	return fmt.Sprintf("campaign:%d:delivered", campaignID)
}

func (l *RedisLog) MarkDelivered(ctx context.Context, campaignID, customerID int64) error {
	if l == nil {
		return nil
	}
	k := key(campaignID)
	pipe := l.rdb.TxPipeline()
	pipe.SAdd(ctx, k, customerID)
	pipe.Expire(ctx, k, l.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisLog) Delivered(ctx context.Context, campaignID, customerID int64) (bool, error) {
	if l == nil {
		return false, nil
	}
	return l.rdb.SIsMember(ctx, key(campaignID), customerID).Result()
}

func (l *RedisLog) Clear(ctx context.Context, campaignID int64) error {
	if l == nil {
		return nil
	}
	return l.rdb.Del(ctx, key(campaignID)).Err()
}
