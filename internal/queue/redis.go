package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// DefaultRedisURL is used when no redis URL is configured.
const DefaultRedisURL = "redis://localhost:6379/0"

// RedisBroker stores each queue as a Redis list and each status record as a
// string key with a TTL. Multiple worker processes can share one broker; a
// job is delivered to exactly one of them per pop.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBroker connects to the given redis:// URL, or a bare host:port
// address. The connection is lazy; call Ping to verify reachability before
// serving traffic.
func NewRedisBroker(rawURL, prefix string) (*RedisBroker, error) {
	if rawURL == "" {
		rawURL = DefaultRedisURL
	}

	var opts *redis.Options
	if strings.Contains(rawURL, "://") {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, troupeErrors.Wrap(troupeErrors.CodeConfigInvalid, "invalid redis url", err).
				WithSuggestion("use redis://host:port/db or a bare host:port address")
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: rawURL}
	}

	return &RedisBroker{rdb: redis.NewClient(opts), prefix: prefix}, nil
}

func (b *RedisBroker) Enqueue(ctx context.Context, queue, jobID string, job interface{}) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", queue, err)
	}
	if err := b.rdb.LPush(ctx, queueKey(b.prefix, queue), payload).Err(); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, fmt.Sprintf("enqueue to %q failed", queue), err)
	}
	return b.SetStatus(ctx, Pending(jobID))
}

func (b *RedisBroker) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = queueKey(b.prefix, q)
	}

	vals, err := b.rdb.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrNoJob
	}
	if err != nil {
		return "", nil, troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, "queue pop failed", err)
	}
	// BRPop returns [key, value]; map the key back to its queue name.
	return b.queueName(vals[0]), []byte(vals[1]), nil
}

func (b *RedisBroker) SetStatus(ctx context.Context, res *JobResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := b.rdb.Set(ctx, statusKey(b.prefix, res.JobID), payload, StatusTTL).Err(); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, "status write failed", err)
	}
	return nil
}

func (b *RedisBroker) Status(ctx context.Context, jobID string) (*JobResult, bool, error) {
	raw, err := b.rdb.Get(ctx, statusKey(b.prefix, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, "status read failed", err)
	}

	var res JobResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("unmarshal job status: %w", err)
	}
	return &res, true, nil
}

func (b *RedisBroker) Depth(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.LLen(ctx, queueKey(b.prefix, queue)).Result()
	if err != nil {
		return 0, troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, "queue depth failed", err)
	}
	return n, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeQueueUnavailable, "redis unreachable", err).
			WithSuggestion(`start redis, set REDIS_URL, or use queue.driver: "memory"`)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

func (b *RedisBroker) queueName(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, b.prefix+":")
}
