// Package queue implements the durable external grading queue on Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

// DefaultPrefix namespaces every key the queue writes.
const DefaultPrefix = "capagrader"

var _ xqueue.Queue = (*Redis)(nil)

// createScript claims KEYS[1] and appends it to the KEYS[2] list in one step.
var createScript = goredis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], KEYS[1])
	return 1
end
return 0
`)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores submissions under their identity key and keeps one list of
// pending identity keys per queue name.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(opts Options) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, opts.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *goredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) submissionKey(item model.StudentItem) string {
	return r.prefix + ":submission:" + item.Key()
}

func (r *Redis) queueKey(name string) string {
	return r.prefix + ":queue:" + name
}

// CreateExternalGraderDetail claims the identity key and appends it to the
// queue list atomically. An identity that is already claimed returns the
// stored detail.
func (r *Redis) CreateExternalGraderDetail(ctx context.Context, d model.ExternalGraderDetail) (model.ExternalGraderDetail, bool, error) {
	key := r.submissionKey(d.StudentItem)
	data, err := json.Marshal(d)
	if err != nil {
		return model.ExternalGraderDetail{}, false, fmt.Errorf("encode submission: %w", err)
	}

	created, err := createScript.Run(ctx, r.rdb, []string{key, r.queueKey(d.QueueName)}, data).Int()
	if err != nil {
		return model.ExternalGraderDetail{}, false, fmt.Errorf("enqueue submission: %w", err)
	}
	if created == 0 {
		existing, err := r.load(ctx, key)
		if err != nil {
			return model.ExternalGraderDetail{}, false, err
		}
		return existing, false, nil
	}
	return d, true, nil
}

// SetScore moves a submitted detail to status inside a WATCH transaction.
func (r *Redis) SetScore(ctx context.Context, item model.StudentItem, status model.SubmissionStatus, score *model.ScoreMessage) error {
	key := r.submissionKey(item)
	return r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return xqueue.ErrUnknownSubmission
		}
		if err != nil {
			return fmt.Errorf("load submission: %w", err)
		}
		var d model.ExternalGraderDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("decode submission: %w", err)
		}
		if !d.Status.CanTransition(status) {
			return xqueue.ErrInvalidTransition
		}
		d.Status = status
		d.Score = score
		d.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode submission: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// Get returns the stored detail for item.
func (r *Redis) Get(ctx context.Context, item model.StudentItem) (model.ExternalGraderDetail, error) {
	return r.load(ctx, r.submissionKey(item))
}

func (r *Redis) load(ctx context.Context, key string) (model.ExternalGraderDetail, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.ExternalGraderDetail{}, xqueue.ErrUnknownSubmission
	}
	if err != nil {
		return model.ExternalGraderDetail{}, fmt.Errorf("load submission: %w", err)
	}
	var d model.ExternalGraderDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.ExternalGraderDetail{}, fmt.Errorf("decode submission: %w", err)
	}
	return d, nil
}

// Pop blocks up to timeout for the next pending submission on queueName.
// It returns nil when the wait times out.
func (r *Redis) Pop(ctx context.Context, queueName string, timeout time.Duration) (*model.ExternalGraderDetail, error) {
	res, err := r.rdb.BLPop(ctx, timeout, r.queueKey(queueName)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop submission: %w", err)
	}
	// BLPOP replies with [list, value].
	d, err := r.load(ctx, res[1])
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List scans every stored submission, filtered by queueName when it is not
// empty, oldest first.
func (r *Redis) List(ctx context.Context, queueName string) ([]model.ExternalGraderDetail, error) {
	var out []model.ExternalGraderDetail
	iter := r.rdb.Scan(ctx, 0, r.prefix+":submission:*", 100).Iterator()
	for iter.Next(ctx) {
		d, err := r.load(ctx, iter.Val())
		if errors.Is(err, xqueue.ErrUnknownSubmission) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if queueName == "" || d.QueueName == queueName {
			out = append(out, d)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ExportSubmissions summarizes the stored submissions on queueName.
func (r *Redis) ExportSubmissions(ctx context.Context, queueName string) (model.SubmissionExport, error) {
	details, err := r.List(ctx, queueName)
	if err != nil {
		return model.SubmissionExport{}, err
	}
	return model.NewSubmissionExport(queueName, details, time.Now().UTC()), nil
}
