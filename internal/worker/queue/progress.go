package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"postcraft/internal/pipeline"
	"postcraft/internal/pkg/errors"
)

// StageProgress is the last reported position within one stage.
type StageProgress struct {
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
	Failed    int  `json:"failed"`
	Done      bool `json:"done"`
}

// Snapshot is the live progress of a run across both stages.
type Snapshot struct {
	Render  StageProgress `json:"render"`
	Publish StageProgress `json:"publish"`
	// LastItemID is the item most recently finished in any stage.
	LastItemID string `json:"last_item_id,omitempty"`
}

// RedisProgress keeps one hash per run under {prefix}:progress:{id}. Workers
// write it, the API reads it while the run is in flight.
type RedisProgress struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisProgress(rdb *redis.Client, prefix string, ttl time.Duration) *RedisProgress {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgress{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (p *RedisProgress) key(runID string) string { return p.prefix + ":progress:" + runID }

// Report records p. Failures are counted with HINCRBY so the counter stays
// right when publishes finish out of order.
func (p *RedisProgress) Report(ctx context.Context, runID string, pr pipeline.Progress) error {
	key := p.key(runID)
	stage := string(pr.Stage)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			stage+":completed", pr.Completed,
			stage+":total", pr.Total,
			"last_item_id", pr.ItemID,
		)
		if pr.Failed {
			pipe.HIncrBy(ctx, key, stage+":failed", 1)
		}
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "progress.report", "redis write")
	}
	return nil
}

// Load returns the snapshot for runID; ok is false when nothing was
// reported yet or the entry expired.
func (p *RedisProgress) Load(ctx context.Context, runID string) (Snapshot, bool, error) {
	fields, err := p.rdb.HGetAll(ctx, p.key(runID)).Result()
	if err != nil {
		return Snapshot{}, false, errors.WrapWithCode(err, errors.CodeUnavailable, "progress.load", "redis read")
	}
	if len(fields) == 0 {
		return Snapshot{}, false, nil
	}
	return parseSnapshot(fields), true, nil
}

func parseSnapshot(fields map[string]string) Snapshot {
	stage := func(name pipeline.Stage) StageProgress {
		s := StageProgress{
			Completed: atoi(fields[string(name)+":completed"]),
			Total:     atoi(fields[string(name)+":total"]),
			Failed:    atoi(fields[string(name)+":failed"]),
		}
		s.Done = s.Total > 0 && s.Completed >= s.Total
		return s
	}
	return Snapshot{
		Render:     stage(pipeline.StageRender),
		Publish:    stage(pipeline.StagePublish),
		LastItemID: fields["last_item_id"],
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
