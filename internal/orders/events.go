package orders

import (
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderSubmitted   = "OrderSubmitted"
	EventOrderMoved       = "OrderMoved"
	EventRequestSubmitted = "RequestSubmitted"
	EventRequestDecided   = "RequestDecided"
	EventTornMove         = "TornMoveDetected"
)

// Envelope wraps every lifecycle event on the wire.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually the order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderSubmittedPayload struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	State       State       `json:"state"`
	Items       []OrderItem `json:"items"`
	TotalCents  int         `json:"total_cents"`
}

type OrderMovedPayload struct {
	OrderID string `json:"order_id"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Actor   string `json:"actor,omitempty"`
}

type RequestSubmittedPayload struct {
	RequestID string `json:"request_id"`
	OrderID   string `json:"order_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
}

type RequestDecidedPayload struct {
	RequestID string `json:"request_id"`
	OrderID   string `json:"order_id"`
	Kind      string `json:"kind"`
	Action    string `json:"action"`
	DecidedBy string `json:"decided_by,omitempty"`
}

type TornMovePayload struct {
	OrderID     string `json:"order_id"`
	State       State  `json:"state"`
	LoggedState State  `json:"logged_state"`
}

// EventSink is what services need from the Kafka producer. Publishing is
// fire-and-forget; the engine's correctness never depends on delivery.
type EventSink interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}
