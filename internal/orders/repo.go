package orders

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeliveryLeadTime is added to createdAt for the delivery estimate.
const DeliveryLeadTime = 5 * 24 * time.Hour

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Repository struct {
	store    Store
	pricing  Calculator
	events   Publisher
	producer string
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Repository)

// WithPublisher emits OrderPlaced / OrderStatusChanged envelopes.
func WithPublisher(p Publisher, producer string) Option {
	return func(r *Repository) {
		r.events = p
		r.producer = producer
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.log = l }
}

func NewRepository(store Store, pricing Calculator, opts ...Option) *Repository {
	r := &Repository{
		store:   store,
		pricing: pricing,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CreateOrder builds an order without persisting it. Timestamps are UTC and
// truncated to microseconds so they survive every store unchanged.
func (r *Repository) CreateOrder(items []CartItem, addr ShippingAddress, totals Totals, userID string) Order {
	createdAt := r.now().UTC().Truncate(time.Microsecond)
	return Order{
		OrderID:            newOrderID(),
		ConfirmationNumber: newConfirmationNumber(),
		UserID:             userID,
		Items:              CloneItems(items),
		ShippingAddress:    addr,
		Currency:           r.pricing.Currency,
		Subtotal:           totals.Subtotal,
		Tax:                totals.Tax,
		Shipping:           totals.Shipping,
		Total:              totals.Subtotal + totals.Tax + totals.Shipping,
		Status:             StatusCompleted,
		CreatedAt:          createdAt,
		EstimatedDelivery:  createdAt.Add(DeliveryLeadTime),
	}
}

// SaveOrder prepends o to its user's history. Saving an order id that is
// already stored is a no-op, so a retried save cannot duplicate it.
func (r *Repository) SaveOrder(ctx context.Context, o Order) error {
	if o.UserID == "" {
		return ErrMissingUser
	}
	inserted := false
	err := r.store.Update(ctx, o.UserID, func(list []Order) ([]Order, error) {
		for _, existing := range list {
			if existing.OrderID == o.OrderID {
				return list, nil
			}
		}
		inserted = true
		return append([]Order{o.clone()}, list...), nil
	})
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.OrderID, err)
	}
	if inserted {
		r.log.Info("order saved",
			zap.String("order_id", o.OrderID),
			zap.String("user_id", o.UserID),
			zap.Stringer("total", o.Total))
		r.publishPlaced(o, "")
	}
	return nil
}

func (r *Repository) GetOrderHistory(ctx context.Context, userID string) ([]Order, error) {
	list, err := r.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	if list == nil {
		list = []Order{}
	}
	return list, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, userID, orderID string) (Order, error) {
	list, err := r.GetOrderHistory(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	for _, o := range list {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return Order{}, ErrOrderNotFound
}

func (r *Repository) GetOrdersByStatus(ctx context.Context, userID string, status Status) ([]Order, error) {
	list, err := r.GetOrderHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(list))
	for _, o := range list {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *Repository) GetRecentOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	list, err := r.GetOrderHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	if limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

// UpdateOrderStatus only allows forward moves; setting the current status
// again succeeds without changes so redelivered updates are harmless.
func (r *Repository) UpdateOrderStatus(ctx context.Context, userID, orderID string, status Status) (Order, error) {
	if _, ok := validNext[status]; !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	var (
		updated Order
		from    Status
	)
	err := r.store.Update(ctx, userID, func(list []Order) ([]Order, error) {
		for i := range list {
			if list[i].OrderID != orderID {
				continue
			}
			from = list[i].Status
			if from != status && !CanTransition(from, status) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, status)
			}
			list[i].Status = status
			updated = list[i].clone()
			return list, nil
		}
		return nil, ErrOrderNotFound
	})
	if err != nil {
		return Order{}, err
	}
	if from != status {
		r.publishStatusChanged(updated, from)
	}
	return updated, nil
}

// CreateReorder clones items and address of a past order into a new, saved
// order priced with the current calculator.
func (r *Repository) CreateReorder(ctx context.Context, userID, orderID string) (Order, error) {
	src, err := r.GetOrderByID(ctx, userID, orderID)
	if err != nil {
		return Order{}, err
	}
	o := r.CreateOrder(src.Items, src.ShippingAddress, r.pricing.Totals(src.Items), userID)
	err = r.store.Update(ctx, userID, func(list []Order) ([]Order, error) {
		return append([]Order{o.clone()}, list...), nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("save reorder: %w", err)
	}
	r.publishPlaced(o, src.OrderID)
	return o, nil
}

func (r *Repository) DeleteOrder(ctx context.Context, userID, orderID string) error {
	return r.store.Update(ctx, userID, func(list []Order) ([]Order, error) {
		for i := range list {
			if list[i].OrderID == orderID {
				return append(list[:i:i], list[i+1:]...), nil
			}
		}
		return nil, ErrOrderNotFound
	})
}

func (r *Repository) ClearOrderHistory(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, userID)
}

func (r *Repository) GetOrderStatistics(ctx context.Context, userID string) (Statistics, error) {
	list, err := r.GetOrderHistory(ctx, userID)
	if err != nil {
		return Statistics{}, err
	}
	var st Statistics
	for _, o := range list {
		st.TotalSpent += o.Total
	}
	st.TotalOrders = len(list)
	if st.TotalOrders > 0 {
		avg := st.TotalSpent.Decimal().Div(decimal.NewFromInt(int64(st.TotalOrders)))
		st.AverageOrderValue = CentsFromDecimal(avg)
	}
	return st, nil
}

func (r *Repository) publishPlaced(o Order, reorderOf string) {
	if r.events == nil {
		return
	}
	r.publish(TopicOrderPlaced, EventOrderPlaced, o.OrderID, OrderPlacedPayload{
		OrderID:            o.OrderID,
		ConfirmationNumber: o.ConfirmationNumber,
		UserID:             o.UserID,
		Items:              toItemQty(o.Items),
		Currency:           o.Currency,
		TotalCents:         int64(o.Total),
		ReorderOf:          reorderOf,
	})
}

func (r *Repository) publishStatusChanged(o Order, from Status) {
	if r.events == nil {
		return
	}
	r.publish(TopicOrderStatusChanged, EventOrderStatusChanged, o.OrderID, OrderStatusChangedPayload{
		OrderID: o.OrderID,
		UserID:  o.UserID,
		From:    from,
		To:      o.Status,
	})
}

func (r *Repository) publish(topic, eventType, orderID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    r.now().UTC(),
		Producer:      r.producer,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	r.events.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
