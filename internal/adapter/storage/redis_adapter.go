package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ldhieu/seckill/internal/core/domain"
	"github.com/ldhieu/seckill/internal/port"
)

const (
	stockKeyPrefix = "seckill:stock:"
	dedupKeyPrefix = "seckill:order:"

	orderStreamKey      = "stream.orders"
	orderStreamGroup    = "g1"
	orderStreamConsumer = "c1"

	streamReadBlock = 2 * time.Second
)

// admissionScript is the whole admission decision as one server-side unit:
// stock check, per-user dedup check, stock decrement, dedup record and
// intent enqueue. Concurrent callers can never both observe "stock
// available" or both pass the per-user check.
//
// Returns 0 admitted, 1 out of stock, 2 already purchased.
var admissionScript = redis.NewScript(`
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]
local stockKey = 'seckill:stock:' .. voucherId
local orderKey = 'seckill:order:' .. voucherId

if (tonumber(redis.call('get', stockKey) or '0') <= 0) then
	return 1
end
if (redis.call('sismember', orderKey, userId) == 1) then
	return 2
end

redis.call('incrby', stockKey, -1)
redis.call('sadd', orderKey, userId)
redis.call('xadd', 'stream.orders', '*', 'userId', userId, 'voucherId', voucherId, 'id', orderId)
return 0
`)

type RedisAdapter struct {
	client redis.UniversalClient
}

func NewRedisAdapter(client redis.UniversalClient) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Admit(ctx context.Context, voucherID, userID, orderID int64) (domain.AdmissionCode, error) {
	result, err := admissionScript.Run(ctx, r.client, []string{},
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("run admission script: %w", err)
	}

	switch code := domain.AdmissionCode(result); code {
	case domain.AdmissionOK, domain.AdmissionOutOfStock, domain.AdmissionAlreadyPurchased:
		return code, nil
	default:
		return 0, fmt.Errorf("admission script returned unknown code %d", result)
	}
}

func (r *RedisAdapter) SeedStock(ctx context.Context, voucherID, stock int64) error {
	return r.client.Set(ctx, stockKeyPrefix+strconv.FormatInt(voucherID, 10), stock, 0).Err()
}

func (r *RedisAdapter) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, orderStreamKey, orderStreamGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// ReadNew waits up to streamReadBlock for an undelivered intent.
func (r *RedisAdapter) ReadNew(ctx context.Context) (*domain.StreamEntry, error) {
	return r.readOne(ctx, ">", streamReadBlock)
}

// ReadPending returns the oldest delivered-but-unacknowledged intent, the
// source of truth for recovery after a consumer crash.
func (r *RedisAdapter) ReadPending(ctx context.Context) (*domain.StreamEntry, error) {
	return r.readOne(ctx, "0", 0)
}

func (r *RedisAdapter) readOne(ctx context.Context, offset string, block time.Duration) (*domain.StreamEntry, error) {
	args := &redis.XReadGroupArgs{
		Group:    orderStreamGroup,
		Consumer: orderStreamConsumer,
		Streams:  []string{orderStreamKey, offset},
		Count:    1,
	}
	if block > 0 {
		args.Block = block
	}

	streams, err := r.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read order stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	intent, err := parseIntent(msg.Values)
	if err != nil {
		// The id still comes back so the consumer can acknowledge the
		// entry; an undecodable payload must not wedge the pending list.
		return &domain.StreamEntry{EntryID: msg.ID}, fmt.Errorf("entry %s: %w", msg.ID, err)
	}
	return &domain.StreamEntry{EntryID: msg.ID, Intent: intent}, nil
}

func (r *RedisAdapter) Ack(ctx context.Context, entryID string) error {
	return r.client.XAck(ctx, orderStreamKey, orderStreamGroup, entryID).Err()
}

func parseIntent(values map[string]interface{}) (domain.OrderIntent, error) {
	var intent domain.OrderIntent
	var err error

	if intent.OrderID, err = intentField(values, "id"); err != nil {
		return intent, err
	}
	if intent.UserID, err = intentField(values, "userId"); err != nil {
		return intent, err
	}
	if intent.VoucherID, err = intentField(values, "voucherId"); err != nil {
		return intent, err
	}
	return intent, nil
}

func intentField(values map[string]interface{}, field string) (int64, error) {
	raw, ok := values[field].(string)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", port.ErrMalformedIntent, field)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", port.ErrMalformedIntent, field, err)
	}
	return n, nil
}
