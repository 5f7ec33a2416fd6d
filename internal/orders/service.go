package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
)

// Store is what the checkout service needs from the order record store.
type Store interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	ListByState(ctx context.Context, state State) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Ledger is the stock ledger surface used at checkout.
type Ledger interface {
	Validate(ctx context.Context, items []ItemQty) ([]StockCheck, error)
	DecrementBulk(ctx context.Context, orderID string, items []ItemQty) error
	Products(ctx context.Context, ids []string) (map[string]Product, error)
}

// Reserver places advisory holds during an in-flight checkout. Holds are
// metadata only; committed stock lives in the ledger.
type Reserver interface {
	Reserve(ctx context.Context, userID string, items []ItemQty, ttl time.Duration) (string, time.Time, error)
	Release(ctx context.Context, reservationID string) error
}

type Service struct {
	store    Store
	ledger   Ledger
	holds    Reserver
	events   EventSink
	log      *zap.Logger
	service  string
	holdTTL  time.Duration
	feeCents int
	now      func() time.Time
}

func NewService(store Store, ledger Ledger, holds Reserver, events EventSink, log *zap.Logger, service string, holdTTL time.Duration, deliveryFeeCents int) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		holds:    holds,
		events:   events,
		log:      log,
		service:  service,
		holdTTL:  holdTTL,
		feeCents: deliveryFeeCents,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SubmitOrderInput struct {
	UserID       string
	Items        []ItemQty
	ContactName  string
	ContactPhone string
	Address      string
	Payment      Payment
	Notes        string
}

// SubmitOrder runs the checkout path: advisory hold, price lookup, bulk
// decrement, insert into pending. Prices come from the product table, never
// from the client.
func (s *Service) SubmitOrder(ctx context.Context, in SubmitOrderInput) (Order, error) {
	if err := validateSubmit(in.UserID, in.Items); err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(in.Address) == "" {
		return Order{}, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	resvID, _, err := s.holds.Reserve(ctx, in.UserID, in.Items, s.holdTTL)
	if err != nil {
		return Order{}, err
	}
	defer func() {
		if err := s.holds.Release(context.WithoutCancel(ctx), resvID); err != nil {
			s.log.Warn("release reservation failed", zap.String("reservation_id", resvID), zap.Error(err))
		}
	}()

	return s.createOrder(ctx, in, StatePending)
}

// SubmitWalkIn records a counter sale: same stock debit, but the order is
// created directly as completed, no hold and no approval step.
func (s *Service) SubmitWalkIn(ctx context.Context, in SubmitOrderInput) (Order, error) {
	if err := validateSubmit(in.UserID, in.Items); err != nil {
		return Order{}, err
	}
	return s.createOrder(ctx, in, StateWalkIn)
}

func (s *Service) createOrder(ctx context.Context, in SubmitOrderInput, state State) (Order, error) {
	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.ledger.Products(ctx, ids)
	if err != nil {
		return Order{}, err
	}

	items := make([]OrderItem, 0, len(in.Items))
	subtotal := 0
	for _, it := range in.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return Order{}, fmt.Errorf("%w: unknown product %s", ErrInvalidInput, it.ProductID)
		}
		if !p.Active {
			return Order{}, fmt.Errorf("%w: product %s is not for sale", ErrInvalidInput, it.ProductID)
		}
		items = append(items, OrderItem{
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			UnitPriceCents: p.PriceCents,
			Category:       p.Category,
		})
		subtotal += p.PriceCents * it.Qty
	}

	orderID := uuid.NewString()
	if err := s.ledger.DecrementBulk(ctx, orderID, in.Items); err != nil {
		return Order{}, err
	}

	now := s.now()
	o := Order{
		ID:               orderID,
		OrderNumber:      newOrderNumber(now),
		UserID:           in.UserID,
		State:            state,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: s.feeCents,
		TotalCents:       subtotal + s.feeCents,
		ContactName:      in.ContactName,
		ContactPhone:     in.ContactPhone,
		Address:          in.Address,
		Payment:          in.Payment,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            items,
	}
	if state == StateWalkIn {
		o.DeliveryFeeCents = 0
		o.TotalCents = subtotal
		stamp := now
		o.DeliveredAt = &stamp
	}

	if err := s.store.Insert(ctx, o); err != nil {
		// Compensate the committed decrement so the stock is not stranded.
		if _, rerr := restoreOnFailedInsert(ctx, s.ledger, orderID, in.Items); rerr != nil {
			s.log.Error("compensating restore failed after insert error",
				zap.String("order_id", orderID), zap.Error(rerr))
		}
		return Order{}, err
	}

	s.publishSubmitted(o)
	return o, nil
}

// restoreOnFailedInsert exists so the checkout path can compensate without
// widening the Ledger interface the handlers see.
func restoreOnFailedInsert(ctx context.Context, l Ledger, orderID string, items []ItemQty) (bool, error) {
	if r, ok := l.(StockRestorer); ok {
		return r.RestoreBulk(ctx, orderID, items, "checkout insert failed")
	}
	return false, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) OrdersByPartition(ctx context.Context, partition string) ([]Order, error) {
	state, err := ParseState(partition)
	if err != nil {
		return nil, err
	}
	return s.store.ListByState(ctx, state)
}

func (s *Service) OrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) publishSubmitted(o Order) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderSubmitted,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.service,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(OrderSubmittedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			UserID:      o.UserID,
			State:       o.State,
			Items:       o.Items,
			TotalCents:  o.TotalCents,
		}),
	}
	s.events.Publish(TopicOrderSubmitted, PartitionKey(o.ID), kafkax.MustMarshal(ev))
}

func validateSubmit(userID string, items []ItemQty) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item without product id", ErrInvalidInput)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("%w: invalid qty for product %s", ErrInvalidInput, it.ProductID)
		}
		if seen[it.ProductID] {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidInput, it.ProductID)
		}
		seen[it.ProductID] = true
	}
	return nil
}

// newOrderNumber builds the human-facing reference staff read to customers.
func newOrderNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}
