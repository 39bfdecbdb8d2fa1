package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey   = "tasks:delayed"
	defaultPayloadKey = "tasks:payload"
	defaultClaimBatch = 100
)

// claimDueScript pops due task ids and returns their payloads.
// ZREM returning 1 is the ownership check: a task claimed here can no longer
// be canceled, and a canceled task is never returned.
var claimDueScript = redis.NewScript(`
-- KEYS[1] = queue zset (score = due time in ms)
-- KEYS[2] = payload hash
-- ARGV[1] = now in ms
-- ARGV[2] = max tasks to claim
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local payload = redis.call('HGET', KEYS[2], id)
    redis.call('HDEL', KEYS[2], id)
    if payload then
      table.insert(out, payload)
    end
  end
end
return out
`)

// RedisScheduler keeps delayed tasks in a sorted set so any API process can
// schedule or cancel and any runner can fire them.
type RedisScheduler struct {
	rdb        *redis.Client
	queueKey   string
	payloadKey string
	clock      func() time.Time
}

func NewRedisScheduler(rdb *redis.Client) *RedisScheduler {
	return &RedisScheduler{
		rdb:        rdb,
		queueKey:   defaultQueueKey,
		payloadKey: defaultPayloadKey,
		clock:      time.Now,
	}
}

func (s *RedisScheduler) Schedule(ctx context.Context, name string, payload any, countdown time.Duration) (string, error) {
	if s.rdb == nil {
		return "", fmt.Errorf("tasks: redis client is nil")
	}
	t, err := newTask(uuid.NewString(), name, payload, s.clock().Add(countdown))
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.payloadKey, t.ID, data)
		p.ZAdd(ctx, s.queueKey, redis.Z{Score: float64(t.RunAt.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tasks: schedule %s: %w", name, err)
	}
	return t.ID, nil
}

// Cancel removes a pending task. ZREM returning 1 means this call won the
// race against ClaimDue.
func (s *RedisScheduler) Cancel(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	if s.rdb == nil {
		return false, fmt.Errorf("tasks: redis client is nil")
	}
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.ZRem(ctx, s.queueKey, id)
		p.HDel(ctx, s.payloadKey, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tasks: cancel %s: %w", id, err)
	}
	return removed.Val() == 1, nil
}

// ClaimDue removes and returns up to limit tasks whose due time has passed.
func (s *RedisScheduler) ClaimDue(ctx context.Context, limit int) ([]Task, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("tasks: redis client is nil")
	}
	if limit <= 0 {
		limit = defaultClaimBatch
	}
	now := strconv.FormatInt(s.clock().UnixMilli(), 10)
	raw, err := claimDueScript.Run(ctx, s.rdb, []string{s.queueKey, s.payloadKey}, now, limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("tasks: claim due: %w", err)
	}

	out := make([]Task, 0, len(raw))
	for _, r := range raw {
		var t Task
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			// A corrupt payload cannot be retried meaningfully; drop it.
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
