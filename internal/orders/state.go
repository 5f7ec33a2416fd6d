package orders

import "fmt"

// State is an order's lifecycle state. Queries and moves address orders by
// state the way the old partitioned layout addressed them by collection, so
// the HTTP surface still calls these "partitions".
type State string

const (
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateDelivered State = "delivered"
	StateDenied    State = "denied"
	StateReturned  State = "returned"
	StateCancelled State = "cancelled"

	// Walk-in sales are created directly as completed, bypassing approval.
	StateWalkIn State = "walk_in"
)

var validNext = map[State]map[State]bool{
	StatePending:   {StateAccepted: true, StateDenied: true, StateCancelled: true},
	StateAccepted:  {StateDelivered: true, StateReturned: true, StateCancelled: true},
	StateDelivered: {StateReturned: true},
	StateDenied:    {},
	StateReturned:  {},
	StateCancelled: {},
	StateWalkIn:    {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

// ParseState rejects unknown state names at the boundary.
func ParseState(s string) (State, error) {
	st := State(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("%w: unknown partition %q", ErrInvalidInput, s)
	}
	return st, nil
}
