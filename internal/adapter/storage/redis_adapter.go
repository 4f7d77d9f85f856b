package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const (
	snapshotField = "data"
	versionField  = "version"
)

// Snapshots live in a hash next to their version so the script can compare
// versions without decoding JSON.
var saveSnapshotScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key, 'version', version, 'data', ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

return 1
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAdapter stores cart snapshots in client. A zero ttl keeps them forever.
func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) Save(ctx context.Context, key string, snapshot domain.CartState) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	result, err := saveSnapshotScript.Run(ctx, r.client, []string{key},
		snapshot.Version, data, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	if result == 0 {
		return port.ErrVersionConflict
	}

	return nil
}

func (r *RedisAdapter) Load(ctx context.Context, key string) (domain.CartState, bool, error) {
	data, err := r.client.HGet(ctx, key, snapshotField).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartState{}, false, nil
	}
	if err != nil {
		return domain.CartState{}, false, fmt.Errorf("load snapshot %s: %w", key, err)
	}

	var snapshot domain.CartState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.CartState{}, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snapshot.Cart == nil {
		snapshot.Cart = []domain.LineItem{}
	}

	return snapshot, true, nil
}

// Ping backs the service health checks.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
