// Package fulfillment applies warehouse status updates to saved orders.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StatusUpdater is satisfied by *orders.Repository.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, userID, orderID string, status orders.Status) (orders.Order, error)
}

type Service struct {
	Repo        StatusUpdater
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// HandleFulfillmentUpdated: dipasang sebagai handler consumer. Returning nil
// commits the offset, so updates that can never apply are logged and dropped.
func (s *Service) HandleFulfillmentUpdated(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("drop malformed envelope", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventFulfillmentUpdated {
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := redisx.DedupKey(s.ServiceName, env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.FulfillmentUpdatedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("drop malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 4) apply
	_, err = s.Repo.UpdateOrderStatus(ctx, p.UserID, p.OrderID, p.Status)
	switch {
	case err == nil:
		s.Log.Info("order status updated",
			zap.String("order_id", p.OrderID), zap.String("status", string(p.Status)))
		return nil
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrIllegalTransition),
		errors.Is(err, orders.ErrUnknownStatus):
		s.Log.Warn("fulfillment update skipped",
			zap.String("order_id", p.OrderID), zap.String("status", string(p.Status)), zap.Error(err))
		return nil
	default:
		// lepas dedup key supaya redelivery bisa coba lagi
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
}
