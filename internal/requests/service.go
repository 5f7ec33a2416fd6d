package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
	"github.com/hmaulana/go-order-engine/internal/orders"
)

// Mover is the slice of the transition engine a decision needs.
type Mover interface {
	Move(ctx context.Context, orderID string, from, to orders.State, attrs orders.MoveAttrs) (orders.Order, error)
}

// OrderReader loads the order a request targets.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
}

// RequestStore is the persistence surface of the workflow.
type RequestStore interface {
	Insert(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	HasPending(ctx context.Context, orderID string, kind Kind) (bool, error)
	Decide(ctx context.Context, id string, to State, decidedBy, notes string, at time.Time) (Request, error)
	ListPending(ctx context.Context) ([]Request, error)
}

type Service struct {
	repo    RequestStore
	ordersR OrderReader
	mover   Mover
	events  orders.EventSink
	log     *zap.Logger
	service string
	now     func() time.Time
}

func NewService(repo RequestStore, ordersR OrderReader, mover Mover, events orders.EventSink, log *zap.Logger, service string) *Service {
	return &Service{
		repo:    repo,
		ordersR: ordersR,
		mover:   mover,
		events:  events,
		log:     log,
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type SubmitReturnInput struct {
	OrderID string
	UserID  string
	Items   []orders.ItemQty
	Reason  string
	Image   string
}

// SubmitReturn files a return petition for a delivered or accepted order.
// Items must be a subset of what the order actually contains.
func (s *Service) SubmitReturn(ctx context.Context, in SubmitReturnInput) (Request, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Request{}, fmt.Errorf("%w: return reason is required", orders.ErrInvalidInput)
	}
	o, err := s.ownedOrder(ctx, in.OrderID, in.UserID)
	if err != nil {
		return Request{}, err
	}
	if o.State != orders.StateDelivered && o.State != orders.StateAccepted {
		return Request{}, fmt.Errorf("%w: cannot return an order in %s", orders.ErrInvalidTransition, o.State)
	}
	if err := validateSubset(in.Items, o); err != nil {
		return Request{}, err
	}

	req := Request{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		Kind:      KindReturn,
		Items:     in.Items,
		Reason:    in.Reason,
		Image:     in.Image,
		State:     StatePendingReview,
		CreatedAt: s.now(),
	}
	return s.file(ctx, req)
}

type SubmitCancellationInput struct {
	OrderID string
	UserID  string
	Reason  string
}

// SubmitCancellation files a cancellation petition while the order has not
// yet been delivered.
func (s *Service) SubmitCancellation(ctx context.Context, in SubmitCancellationInput) (Request, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Request{}, fmt.Errorf("%w: cancellation reason is required", orders.ErrInvalidInput)
	}
	o, err := s.ownedOrder(ctx, in.OrderID, in.UserID)
	if err != nil {
		return Request{}, err
	}
	if o.State != orders.StatePending && o.State != orders.StateAccepted {
		return Request{}, fmt.Errorf("%w: cannot cancel an order in %s", orders.ErrInvalidTransition, o.State)
	}

	req := Request{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		Kind:      KindCancellation,
		Reason:    in.Reason,
		State:     StatePendingReview,
		CreatedAt: s.now(),
	}
	return s.file(ctx, req)
}

func (s *Service) file(ctx context.Context, req Request) (Request, error) {
	dup, err := s.repo.HasPending(ctx, req.OrderID, req.Kind)
	if err != nil {
		return Request{}, err
	}
	if dup {
		return Request{}, fmt.Errorf("%w: order %s already has a pending %s request", orders.ErrConflict, req.OrderID, req.Kind)
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return Request{}, err
	}
	s.publish(orders.EventRequestSubmitted, orders.TopicRequestSubmitted, req.OrderID, orders.RequestSubmittedPayload{
		RequestID: req.ID,
		OrderID:   req.OrderID,
		Kind:      string(req.Kind),
		Reason:    req.Reason,
	})
	return req, nil
}

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type DecideInput struct {
	RequestID string
	Action    string
	DecidedBy string
	Notes     string
}

// Decide settles a pending request. A rejection only updates the request; an
// approval also moves the order, return requests to returned and cancellation
// requests to cancelled. The request is settled first so a failed move leaves
// an approved request with an unmoved order, which the reconcile sweep and
// staff feed make visible rather than silently undone.
func (s *Service) Decide(ctx context.Context, in DecideInput) (Request, error) {
	if in.Action != ActionApprove && in.Action != ActionReject {
		return Request{}, fmt.Errorf("%w: unknown action %q", orders.ErrInvalidInput, in.Action)
	}

	req, err := s.repo.Get(ctx, in.RequestID)
	if err != nil {
		return Request{}, err
	}
	if req.State != StatePendingReview {
		return Request{}, fmt.Errorf("%w: request %s already decided", orders.ErrConflict, in.RequestID)
	}

	to := StateRejected
	if in.Action == ActionApprove {
		to = StateApproved
	}
	req, err = s.repo.Decide(ctx, in.RequestID, to, in.DecidedBy, in.Notes, s.now())
	if err != nil {
		return Request{}, err
	}

	if in.Action == ActionApprove {
		if err := s.applyApproval(ctx, req, in); err != nil {
			return Request{}, err
		}
	}

	s.publish(orders.EventRequestDecided, orders.TopicRequestDecided, req.OrderID, orders.RequestDecidedPayload{
		RequestID: req.ID,
		OrderID:   req.OrderID,
		Kind:      string(req.Kind),
		Action:    in.Action,
		DecidedBy: in.DecidedBy,
	})
	return req, nil
}

func (s *Service) applyApproval(ctx context.Context, req Request, in DecideInput) error {
	o, err := s.ordersR.Get(ctx, req.OrderID)
	if err != nil {
		return err
	}

	var target orders.State
	attrs := orders.MoveAttrs{Actor: in.DecidedBy, Note: in.Notes}
	switch req.Kind {
	case KindReturn:
		target = orders.StateReturned
		attrs.ReturnReason = req.Reason
		attrs.ReturnImage = req.Image
	case KindCancellation:
		target = orders.StateCancelled
		attrs.CancellationReason = req.Reason
	default:
		return fmt.Errorf("%w: unknown request kind %q", orders.ErrInvalidInput, req.Kind)
	}

	if _, err := s.mover.Move(ctx, req.OrderID, o.State, target, attrs); err != nil {
		s.log.Error("approved request but order move failed",
			zap.String("request_id", req.ID),
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Pending(ctx context.Context) ([]Request, error) {
	return s.repo.ListPending(ctx)
}

func (s *Service) ownedOrder(ctx context.Context, orderID, userID string) (orders.Order, error) {
	o, err := s.ordersR.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	// An order of another user reads as absent, never as forbidden.
	if userID != "" && o.UserID != userID {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func validateSubset(items []orders.ItemQty, o orders.Order) error {
	if len(items) == 0 {
		return nil // empty means the whole order
	}
	have := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		have[it.ProductID] = it.Qty
	}
	// Sum per product so repeated lines count against the same ordered qty.
	want := make(map[string]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return fmt.Errorf("%w: invalid qty for product %s", orders.ErrInvalidInput, it.ProductID)
		}
		want[it.ProductID] += it.Qty
	}
	for productID, qty := range want {
		if have[productID] < qty {
			return fmt.Errorf("%w: product %s exceeds ordered quantity", orders.ErrInvalidInput, productID)
		}
	}
	return nil
}

func (s *Service) publish(eventType, topic, orderID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.events.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(ev))
}
