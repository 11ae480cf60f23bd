package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const defaultRedisPrefix = "outreach"

// RedisConfig configures the redis sink.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Redis keeps one hash per job plus a set indexing every job id.
type Redis struct {
	client *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	r := NewRedis(client, cfg.Prefix)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &outreach.SinkUnavailable{Sink: r.Name(), Err: fmt.Errorf("redis ping failed: %w", err)}
	}

	return r, nil
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) jobKey(id string) string { return fmt.Sprintf("%s:job:%s", r.prefix, id) }

func (r *Redis) indexKey() string { return r.prefix + ":jobs" }

func (r *Redis) Upsert(ctx context.Context, job *outreach.JobRecord) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.jobKey(job.JobID), rowMap(job))
		pipe.SAdd(ctx, r.indexKey(), job.JobID)
		return nil
	})
	if err != nil {
		return r.wrap(fmt.Errorf("upsert %s: %w", job.JobID, err))
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, jobID string) (*outreach.JobRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return nil, r.wrap(fmt.Errorf("get %s: %w", jobID, err))
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fromMap(fields)
}

func (r *Redis) List(ctx context.Context) ([]*outreach.JobRecord, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, r.wrap(fmt.Errorf("list: %w", err))
	}
	sort.Strings(ids)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.jobKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, r.wrap(fmt.Errorf("list: %w", err))
		}
	}

	jobs := make([]*outreach.JobRecord, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := fromMap(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) wrap(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &outreach.SinkUnavailable{Sink: r.Name(), Err: err}
}
