package requests

import (
	"time"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

type Kind string

const (
	KindReturn       Kind = "return"
	KindCancellation Kind = "cancellation"
)

type State string

const (
	StatePendingReview State = "pending_review"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

// Request is a customer's petition to unwind an order. It holds its own
// review state; the order itself does not move until a staff decision.
type Request struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"order_id"`
	Kind          Kind             `json:"kind"`
	Items         []orders.ItemQty `json:"items,omitempty"`
	Reason        string           `json:"reason"`
	Image         string           `json:"image,omitempty"`
	State         State            `json:"state"`
	DecidedBy     string           `json:"decided_by,omitempty"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
	DecisionNotes string           `json:"decision_notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
