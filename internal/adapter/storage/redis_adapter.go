package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/checkout/internal/core/domain"
	"github.com/rl1809/checkout/internal/port"
)

const (
	requestKeyPrefix = "checkout:request:"
	pendingMarker    = "pending"
	// claimTTL bounds how long a crashed attempt blocks its request id
	claimTTL = 30 * time.Second
)

// claimScript sets the pending marker when the key is absent. It returns
// {0} for a new claim, {1} while another attempt holds it and {2, order}
// once an order was stored.
var claimScript = redis.NewScript(`
local key = KEYS[1]
local marker = ARGV[1]
local ttl = tonumber(ARGV[2])

local current = redis.call('GET', key)
if not current then
	redis.call('SET', key, marker, 'PX', ttl)
	return {0}
end

if current == marker then
	return {1}
end

return {2, current}
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore keeps completed orders for ttl.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (r *RedisIdempotencyStore) Claim(ctx context.Context, requestID string) (port.ClaimState, *domain.Order, error) {
	key := requestKeyPrefix + requestID

	result, err := claimScript.Run(ctx, r.client, []string{key}, pendingMarker, claimTTL.Milliseconds()).Slice()
	if err != nil {
		return 0, nil, fmt.Errorf("claim request %s: %w", requestID, err)
	}

	state, ok := result[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("claim request %s: unexpected reply %v", requestID, result)
	}

	switch port.ClaimState(state) {
	case port.ClaimAcquired:
		return port.ClaimAcquired, nil, nil
	case port.ClaimInFlight:
		return port.ClaimInFlight, nil, nil
	case port.ClaimCompleted:
		payload, _ := result[1].(string)
		var order domain.Order
		if err := json.Unmarshal([]byte(payload), &order); err != nil {
			return 0, nil, fmt.Errorf("decode stored order for %s: %w", requestID, err)
		}
		return port.ClaimCompleted, &order, nil
	default:
		return 0, nil, fmt.Errorf("claim request %s: unknown state %d", requestID, state)
	}
}

func (r *RedisIdempotencyStore) Complete(ctx context.Context, requestID string, order domain.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.ID, err)
	}
	if err := r.client.Set(ctx, requestKeyPrefix+requestID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store order for request %s: %w", requestID, err)
	}
	return nil
}

// Release only removes a pending claim, never a stored order.
func (r *RedisIdempotencyStore) Release(ctx context.Context, requestID string) error {
	err := releaseScript.Run(ctx, r.client, []string{requestKeyPrefix + requestID}, pendingMarker).Err()
	if err != nil {
		return fmt.Errorf("release request %s: %w", requestID, err)
	}
	return nil
}
