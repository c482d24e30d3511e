package orders

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func newOrderID() string { return uuid.NewString() }

// Confirmation numbers come from a separate ULID stream so they cannot be
// derived from the order id. Only the random tail is kept to stay short.
func newConfirmationNumber() string {
	id := ulid.Make().String()
	return "CNF-" + id[len(id)-10:]
}
