package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

var ErrConcurrentUpdate = errors.New("order history changed concurrently")

type RedisStore struct {
	rdb        *redis.Client
	maxRetries int
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, maxRetries: 5}
}

func (s *RedisStore) Load(ctx context.Context, userID string) ([]Order, error) {
	b, err := s.rdb.Get(ctx, redisx.OrdersKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get orders: %w", err)
	}
	return decodeOrders(b)
}

// Update uses WATCH/MULTI so a concurrent writer forces a retry instead of a
// lost update.
func (s *RedisStore) Update(ctx context.Context, userID string, fn func([]Order) ([]Order, error)) error {
	key := redisx.OrdersKey(userID)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get orders: %w", err)
		}
		current, err := decodeOrders(b)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		nb, err := encodeOrders(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConcurrentUpdate
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, redisx.OrdersKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete orders: %w", err)
	}
	return nil
}
