package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "storemon:report:"
	redisIndexKey  = "storemon:reports"
)

// RedisStore implements the Store interface on Redis. Each job is a JSON
// string; a sorted set scored by creation time indexes them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db).
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(reportID string) string {
	return redisKeyPrefix + reportID
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) getJob(ctx context.Context, g stringGetter, reportID string) (*Job, error) {
	data, err := g.Get(ctx, redisKey(reportID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", reportID, err)
	}
	return decodeJob(data)
}

// Create records a new Running job.
func (s *RedisStore) Create(ctx context.Context, reportID string, createdAt time.Time) (*Job, error) {
	job, err := newJob(reportID, createdAt)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey(reportID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create report %s: %w", reportID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobExists, reportID)
	}

	score := float64(job.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, redisIndexKey, redis.Z{Score: score, Member: reportID}).Err(); err != nil {
		return nil, fmt.Errorf("failed to index report %s: %w", reportID, err)
	}
	return job, nil
}

// SetResult moves a Running job to its terminal state. The key is watched so
// a concurrent writer makes the transaction fail instead of overwriting.
func (s *RedisStore) SetResult(ctx context.Context, reportID string, res Result) error {
	key := redisKey(reportID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJob(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if err := apply(job, res); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// Get retrieves a specific job by its ID.
func (s *RedisStore) Get(ctx context.Context, reportID string) (*Job, error) {
	return s.getJob(ctx, s.client, reportID)
}

// List retrieves the most recent jobs without their rows.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100 // default limit
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a job, left behind by a purge
			continue
		}
		job, err := decodeJob([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", ids[i], err)
		}
		jobs = append(jobs, summary(job))
	}
	return newestFirst(jobs, limit), nil
}

// Purge deletes terminal jobs created before olderThan.
func (s *RedisStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan reports: %w", err)
	}

	removed := 0
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.ZRem(ctx, redisIndexKey, id)
			continue
		}
		if err != nil {
			return removed, err
		}
		if !purgeable(job, olderThan) {
			continue
		}
		if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey(id))
			pipe.ZRem(ctx, redisIndexKey, id)
			return nil
		}); err != nil {
			return removed, fmt.Errorf("failed to purge report %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
