package orders

import "fmt"

type Status string

const (
	StatusCompleted Status = "completed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

// Status only moves forward; there is no cancellation.
var validNext = map[Status]map[Status]bool{
	StatusCompleted: {StatusShipped: true, StatusDelivered: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}
