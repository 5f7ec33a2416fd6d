package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	inserted  []Order
	insertErr error
	orders    map[string]Order
}

func (f *fakeStore) Insert(_ context.Context, o Order) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, o)
	return nil
}

func (f *fakeStore) Get(_ context.Context, orderID string) (Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) ListByState(_ context.Context, state State) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.State == state {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeLedger struct {
	products     map[string]Product
	decremented  [][]ItemQty
	decrementErr error
	restored     int
}

func (f *fakeLedger) Validate(_ context.Context, items []ItemQty) ([]StockCheck, error) {
	out := make([]StockCheck, 0, len(items))
	for _, it := range items {
		p := f.products[it.ProductID]
		out = append(out, StockCheck{ProductID: it.ProductID, Requested: it.Qty, Available: p.Stock, OK: p.Stock >= it.Qty})
	}
	return out, nil
}

func (f *fakeLedger) DecrementBulk(_ context.Context, _ string, items []ItemQty) error {
	if f.decrementErr != nil {
		return f.decrementErr
	}
	f.decremented = append(f.decremented, items)
	return nil
}

func (f *fakeLedger) RestoreBulk(_ context.Context, _ string, _ []ItemQty, _ string) (bool, error) {
	f.restored++
	return true, nil
}

func (f *fakeLedger) Products(_ context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeReserver struct {
	reserved   int
	released   []string
	reserveErr error
}

func (f *fakeReserver) Reserve(_ context.Context, _ string, _ []ItemQty, ttl time.Duration) (string, time.Time, error) {
	if f.reserveErr != nil {
		return "", time.Time{}, f.reserveErr
	}
	f.reserved++
	return "resv-1", time.Now().Add(ttl), nil
}

func (f *fakeReserver) Release(_ context.Context, id string) error {
	f.released = append(f.released, id)
	return nil
}

func catalog() map[string]Product {
	return map[string]Product{
		"p1": {ID: "p1", Category: "flowers", PriceCents: 1500, Stock: 10, Active: true},
		"p2": {ID: "p2", Category: "vases", PriceCents: 4000, Stock: 3, Active: true},
		"p3": {ID: "p3", Category: "flowers", PriceCents: 900, Stock: 5, Active: false},
	}
}

func newTestService(store *fakeStore, ledger *fakeLedger, holds *fakeReserver) *Service {
	return NewService(store, ledger, holds, &fakeSink{}, zap.NewNop(), "test", 10*time.Minute, 5000)
}

func TestService_SubmitOrder(t *testing.T) {
	t.Parallel()

	validInput := func() SubmitOrderInput {
		return SubmitOrderInput{
			UserID:  "u1",
			Items:   []ItemQty{{ProductID: "p1", Qty: 2}, {ProductID: "p2", Qty: 1}},
			Address: "Jl. Melati 5",
		}
	}

	t.Run("prices from the catalog, never the client", func(t *testing.T) {
		store := &fakeStore{}
		ledger := &fakeLedger{products: catalog()}
		holds := &fakeReserver{}
		svc := newTestService(store, ledger, holds)

		o, err := svc.SubmitOrder(context.Background(), validInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if o.SubtotalCents != 2*1500+4000 {
			t.Fatalf("expected subtotal 7000, got %d", o.SubtotalCents)
		}
		if o.TotalCents != o.SubtotalCents+5000 {
			t.Fatalf("expected delivery fee added, got %d", o.TotalCents)
		}
		if o.State != StatePending {
			t.Fatalf("expected pending, got %s", o.State)
		}
		if !strings.HasPrefix(o.OrderNumber, "ORD-") {
			t.Fatalf("expected order number, got %q", o.OrderNumber)
		}
		if len(store.inserted) != 1 {
			t.Fatalf("expected one insert")
		}
		if len(ledger.decremented) != 1 {
			t.Fatalf("expected one decrement")
		}
		if holds.reserved != 1 || len(holds.released) != 1 {
			t.Fatalf("expected hold placed and released, got %d/%d", holds.reserved, len(holds.released))
		}
	})

	t.Run("insufficient stock propagates and skips insert", func(t *testing.T) {
		store := &fakeStore{}
		ledger := &fakeLedger{
			products:     catalog(),
			decrementErr: &InsufficientStockError{Items: []Shortfall{{ProductID: "p2", Required: 5, Available: 3}}},
		}
		holds := &fakeReserver{}
		svc := newTestService(store, ledger, holds)

		_, err := svc.SubmitOrder(context.Background(), validInput())
		if !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if len(store.inserted) != 0 {
			t.Fatalf("no order must be inserted")
		}
		if len(holds.released) != 1 {
			t.Fatalf("hold must still be released")
		}
	})

	t.Run("reservation conflict aborts before pricing", func(t *testing.T) {
		ledger := &fakeLedger{products: catalog()}
		holds := &fakeReserver{reserveErr: ErrReservationConflict}
		svc := newTestService(&fakeStore{}, ledger, holds)

		_, err := svc.SubmitOrder(context.Background(), validInput())
		if !errors.Is(err, ErrReservationConflict) {
			t.Fatalf("expected ErrReservationConflict, got %v", err)
		}
		if len(ledger.decremented) != 0 {
			t.Fatalf("stock must not be touched")
		}
	})

	t.Run("inactive product is rejected", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeLedger{products: catalog()}, &fakeReserver{})

		in := validInput()
		in.Items = []ItemQty{{ProductID: "p3", Qty: 1}}
		_, err := svc.SubmitOrder(context.Background(), in)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeLedger{products: catalog()}, &fakeReserver{})

		in := validInput()
		in.Items = []ItemQty{{ProductID: "ghost", Qty: 1}}
		_, err := svc.SubmitOrder(context.Background(), in)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("input validation", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeLedger{products: catalog()}, &fakeReserver{})

		cases := []SubmitOrderInput{
			{UserID: "", Items: []ItemQty{{ProductID: "p1", Qty: 1}}, Address: "a"},
			{UserID: "u1", Items: nil, Address: "a"},
			{UserID: "u1", Items: []ItemQty{{ProductID: "p1", Qty: 0}}, Address: "a"},
			{UserID: "u1", Items: []ItemQty{{ProductID: "p1", Qty: 1}, {ProductID: "p1", Qty: 2}}, Address: "a"},
			{UserID: "u1", Items: []ItemQty{{ProductID: "p1", Qty: 1}}, Address: "  "},
		}
		for i, in := range cases {
			if _, err := svc.SubmitOrder(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
			}
		}
	})

	t.Run("failed insert compensates the decrement", func(t *testing.T) {
		store := &fakeStore{insertErr: errors.New("pg down")}
		ledger := &fakeLedger{products: catalog()}
		svc := newTestService(store, ledger, &fakeReserver{})

		_, err := svc.SubmitOrder(context.Background(), validInput())
		if err == nil {
			t.Fatalf("expected error")
		}
		if ledger.restored != 1 {
			t.Fatalf("expected compensating restore, got %d", ledger.restored)
		}
	})
}

func TestService_SubmitWalkIn(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	ledger := &fakeLedger{products: catalog()}
	holds := &fakeReserver{}
	svc := newTestService(store, ledger, holds)

	o, err := svc.SubmitWalkIn(context.Background(), SubmitOrderInput{
		UserID: "staff-counter",
		Items:  []ItemQty{{ProductID: "p1", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.State != StateWalkIn {
		t.Fatalf("expected walk_in, got %s", o.State)
	}
	if o.DeliveryFeeCents != 0 {
		t.Fatalf("walk-in must not carry a delivery fee")
	}
	if o.TotalCents != 1500 {
		t.Fatalf("expected total 1500, got %d", o.TotalCents)
	}
	if o.DeliveredAt == nil {
		t.Fatalf("walk-in is complete at creation")
	}
	if holds.reserved != 0 {
		t.Fatalf("walk-in must not reserve")
	}
	if len(ledger.decremented) != 1 {
		t.Fatalf("walk-in still debits stock")
	}
}

func TestService_Queries(t *testing.T) {
	t.Parallel()

	store := &fakeStore{orders: map[string]Order{
		"o1": {ID: "o1", UserID: "u1", State: StatePending},
		"o2": {ID: "o2", UserID: "u1", State: StateAccepted},
		"o3": {ID: "o3", UserID: "u2", State: StatePending},
	}}
	svc := newTestService(store, &fakeLedger{products: catalog()}, &fakeReserver{})

	t.Run("by partition", func(t *testing.T) {
		list, err := svc.OrdersByPartition(context.Background(), "pending")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 pending orders, got %d", len(list))
		}
	})

	t.Run("unknown partition", func(t *testing.T) {
		_, err := svc.OrdersByPartition(context.Background(), "limbo")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("by user", func(t *testing.T) {
		list, err := svc.OrdersByUser(context.Background(), "u1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 orders for u1, got %d", len(list))
		}
	})
}
