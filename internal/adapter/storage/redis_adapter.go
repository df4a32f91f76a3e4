package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

const (
	draftKeyPrefix       = "draft:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// saveDraftScript writes a draft only when it is newer than the stored one,
// so out-of-order saves cannot roll a session back.
var saveDraftScript = redis.NewScript(`
local key = KEYS[1]
local revision = tonumber(ARGV[1])
local payload = ARGV[2]
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'revision')
if current and tonumber(current) > revision then
	return 0
end

redis.call('HSET', key, 'revision', revision, 'payload', payload)
redis.call('PEXPIRE', key, ttl)
return 1
`)

type RedisAdapter struct {
	client   *redis.Client
	draftTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, draftTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, draftTTL: draftTTL}
}

func (r *RedisAdapter) SaveDraft(ctx context.Context, draft domain.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	key := draftKeyPrefix + draft.SessionID
	return saveDraftScript.Run(ctx, r.client, []string{key}, draft.Revision, payload, r.draftTTL.Milliseconds()).Err()
}

func (r *RedisAdapter) LoadDraft(ctx context.Context, sessionID string) (*domain.Draft, error) {
	payload, err := r.client.HGet(ctx, draftKeyPrefix+sessionID, "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var draft domain.Draft
	if err := json.Unmarshal(payload, &draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &draft, nil
}

func (r *RedisAdapter) DeleteDraft(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, draftKeyPrefix+sessionID).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
