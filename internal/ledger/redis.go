package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sswl/panpub/internal/config"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/utils"
)

// RedisLedger keeps published titles as keys "<prefix>published:<hash>".
// SETNX makes the check-and-record race safe across processes; entries never
// expire, a published title blocks re-publication permanently.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(cfg *config.Config) (*RedisLedger, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLedger{
		client: client,
		prefix: cfg.RedisPrefix + "published:",
	}, nil
}

func (r *RedisLedger) key(title string) string {
	return r.prefix + utils.Hash(Normalize(title))
}

func (r *RedisLedger) Has(ctx context.Context, title string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.key(title)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return exists > 0, nil
}

func (r *RedisLedger) Record(ctx context.Context, title string, publishedAt time.Time) error {
	if err := r.client.SetNX(ctx, r.key(title), publishedAt.Unix(), 0).Err(); err != nil {
		return fmt.Errorf("redis setnx error: %w", err)
	}
	return nil
}

func (r *RedisLedger) Truncate(ctx context.Context) error {
	logger.Get().Warn().
		Str("prefix", r.prefix).
		Msg("Truncating publication ledger in Redis, all resources become eligible for re-publication")

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning ledger keys: %w", err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("error deleting ledger keys: %w", err)
		}
	}

	return nil
}

func (r *RedisLedger) Close() error {
	return r.client.Close()
}
