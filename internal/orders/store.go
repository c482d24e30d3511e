package orders

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists one newest-first order list per user.
type Store interface {
	Load(ctx context.Context, userID string) ([]Order, error)
	// Update runs fn on the current list and writes the result atomically.
	// An error from fn aborts the write and is returned unchanged.
	Update(ctx context.Context, userID string, fn func([]Order) ([]Order, error)) error
	Delete(ctx context.Context, userID string) error
}

func decodeOrders(b []byte) ([]Order, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out []Order
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return out, nil
}

func encodeOrders(list []Order) ([]byte, error) {
	if list == nil {
		list = []Order{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode orders: %w", err)
	}
	return b, nil
}
