package history

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"postcraft/internal/models"
	"postcraft/internal/pkg/errors"
)

// Redis stores each run as a JSON string under {prefix}:run:{id} and keeps
// a sorted-set index by creation time for listing.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "postcraft"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id string) string { return r.prefix + ":run:" + id }
func (r *Redis) index() string       { return r.prefix + ":runs" }

func (r *Redis) Get(ctx context.Context, id string) (*models.Run, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.NotFound("run", id)
		}
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.get", "redis get")
	}
	var run models.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, errors.Wrap(err, "history.redis.get", "decode run")
	}
	return &run, nil
}

func (r *Redis) Set(ctx context.Context, run *models.Run) error {
	if run == nil || run.ID == "" {
		return errors.ValidationField("id", "run id is required")
	}
	body, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "history.redis.set", "encode run")
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(run.ID), body, r.ttl)
		p.ZAdd(ctx, r.index(), redis.Z{Score: float64(run.CreatedAt.UnixMilli()), Member: run.ID})
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.set", "redis write")
	}
	return nil
}

// List skips index entries whose run expired.
func (r *Redis) List(ctx context.Context, limit int) ([]models.Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, r.index(), 0, stop).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.list", "redis index")
	}
	if len(ids) == 0 {
		return []models.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.list", "redis mget")
	}

	out := make([]models.Run, 0, len(vals))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var run models.Run
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			return nil, errors.Wrap(err, "history.redis.list", "decode run")
		}
		out = append(out, run)
	}
	if len(stale) > 0 {
		_ = r.rdb.ZRem(ctx, r.index(), stale...).Err()
	}
	return out, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	ids, err := r.rdb.ZRange(ctx, r.index(), 0, -1).Result()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.clear", "redis index")
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}
	keys = append(keys, r.index())
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "history.redis.clear", "redis del")
	}
	return nil
}
