package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"formpilot/pkg/logx"
	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
)

// RedisStore implements session.Store and scheduler.Store on Redis.
// Sessions live under "<prefix>session:<user>" and jobs in the hash "<prefix>jobs".
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logx.Logger
}

// OpenRedis connects to the server at url (redis://...). A zero ttl keeps sessions forever.
func OpenRedis(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, prefix, ttl), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logx.NewLogger("persistence")}
}

func (r *RedisStore) sessionKey(userID int64) string {
	return r.prefix + "session:" + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) jobsKey() string {
	return r.prefix + "jobs"
}

func (r *RedisStore) LoadSession(ctx context.Context, userID int64) (*session.Snapshot, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %d: %w", userID, err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %d: %w", userID, err)
	}
	return &snap, nil
}

// SaveSession stores the snapshot and refreshes its TTL.
func (r *RedisStore) SaveSession(ctx context.Context, snap *session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session %d: %w", snap.UserID, err)
	}
	if err := r.client.Set(ctx, r.sessionKey(snap.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session %d: %w", snap.UserID, err)
	}
	return nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) SaveJob(ctx context.Context, job scheduler.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := r.client.HSet(ctx, r.jobsKey(), job.ID, raw).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *RedisStore) DeleteJob(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.jobsKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// ListJobs returns every stored job in creation order. Entries that fail to decode are skipped.
func (r *RedisStore) ListJobs(ctx context.Context) ([]scheduler.Job, error) {
	all, err := r.client.HGetAll(ctx, r.jobsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs := make([]scheduler.Job, 0, len(all))
	for id, raw := range all {
		var job scheduler.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			r.logger.Warn("Skipping unreadable job %s: %v", id, err)
			continue
		}
		jobs = append(jobs, job)
	}
	scheduler.SortJobs(jobs)
	return jobs, nil
}

// Ping tests the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
