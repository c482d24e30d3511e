package redisx

import (
	"fmt"
	"time"
)

const (
	// Riwayat order per user: orders:{user_id} -> JSON list, newest first
	KeyOrders = "orders:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)

func OrdersKey(userID string) string { return fmt.Sprintf(KeyOrders, userID) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
