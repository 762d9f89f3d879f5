package cart

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// addScript increments the line quantity and records first-add order
// atomically. It returns -1 without writing when the line would exceed the
// cap. KEYS: qty hash, order list. ARGV: book id, quantity, ttl ms, cap.
var addScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur + tonumber(ARGV[2]) > tonumber(ARGV[4]) then
	return -1
end
local qty = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if qty == tonumber(ARGV[2]) then
	redis.call('RPUSH', KEYS[2], ARGV[1])
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return qty
`)

// RedisStore keeps carts in Redis so they survive restarts and are shared
// between replicas. Each cart is a quantity hash plus an insertion-order list.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps client. A positive ttl expires idle carts.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Add(ctx context.Context, owner string, item Item) ([]Item, error) {
	if err := validate(owner, item); err != nil {
		return nil, err
	}

	qtyKey, orderKey := keys(owner)
	qty, err := addScript.Run(ctx, s.client,
		[]string{qtyKey, orderKey},
		strconv.FormatUint(uint64(item.BookID), 10),
		item.Quantity,
		s.ttl.Milliseconds(),
		MaxQuantity,
	).Int64()
	if err != nil {
		// HINCRBY refuses to overflow; treat it like any out-of-range line
		if strings.Contains(err.Error(), "overflow") {
			return nil, ErrInvalidItem
		}
		return nil, fmt.Errorf("add to cart %s: %w", owner, err)
	}
	if qty < 0 {
		return nil, ErrInvalidItem
	}

	return s.Items(ctx, owner)
}

func (s *RedisStore) Items(ctx context.Context, owner string) ([]Item, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}

	qtyKey, orderKey := keys(owner)
	ids, err := s.client.LRange(ctx, orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", owner, err)
	}
	if len(ids) == 0 {
		return []Item{}, nil
	}

	quantities, err := s.client.HMGet(ctx, qtyKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", owner, err)
	}

	items := make([]Item, 0, len(ids))
	for i, id := range ids {
		raw, ok := quantities[i].(string)
		if !ok {
			continue
		}
		bookID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil || qty <= 0 {
			continue
		}
		items = append(items, Item{BookID: uint(bookID), Quantity: qty})
	}
	return items, nil
}

func (s *RedisStore) Clear(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrNoOwner
	}

	qtyKey, orderKey := keys(owner)
	if err := s.client.Del(ctx, qtyKey, orderKey).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", owner, err)
	}
	return nil
}

// keys share a hash tag so both land on the same cluster slot.
func keys(owner string) (qty, order string) {
	base := "cart:{" + owner + "}"
	return base + ":qty", base + ":order"
}
