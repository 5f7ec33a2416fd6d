package orders

import "time"

type Product struct {
	ID         string
	SKU        string
	Name       string
	Category   string
	PriceCents int
	Stock      int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderItem struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Category       string `json:"category"`
}

// Payment is metadata supplied by the client; the engine records it and never
// talks to a gateway.
type Payment struct {
	Method      string `json:"method"`
	Ref         string `json:"ref"`
	AmountCents int    `json:"amount_cents"`
	Proof       string `json:"proof"`
}

type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	State       State

	SubtotalCents    int
	DeliveryFeeCents int
	TotalCents       int

	ContactName  string
	ContactPhone string
	Address      string

	Payment Payment
	Notes   string

	DenialReason       string
	ReturnReason       string
	ReturnImage        string
	CancellationReason string

	CreatedAt time.Time
	UpdatedAt time.Time

	// State-entry timestamps, set once when the order reaches the state.
	ApprovedAt  *time.Time
	DeliveredAt *time.Time
	DeniedAt    *time.Time
	ReturnedAt  *time.Time
	CancelledAt *time.Time

	Items []OrderItem
}

// Transition is one row of the append-only move log.
type Transition struct {
	ID         int64
	OrderID    string
	From       State
	To         State
	Actor      string
	Note       string
	OccurredAt time.Time
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// StockCheck is the per-item result of a read-only validation.
type StockCheck struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	OK        bool   `json:"ok"`
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Active    bool   `json:"active"`
}

// ItemQtys projects order line items to (product, qty) pairs for the ledger.
func (o Order) ItemQtys() []ItemQty {
	out := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
