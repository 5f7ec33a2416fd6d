package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
)

// MoveStore is what the engine needs from the order record store.
type MoveStore interface {
	Get(ctx context.Context, orderID string) (Order, error)
	ApplyMove(ctx context.Context, orderID string, from, to State, attrs MoveAttrs, now time.Time) error
	FindStateMismatches(ctx context.Context) ([]TornMoveError, error)
}

// StockRestorer credits stock back to the ledger. The bool result reports
// whether a restore actually happened; false means this order was already
// restored once and the call was a no-op.
type StockRestorer interface {
	RestoreBulk(ctx context.Context, orderID string, items []ItemQty, reason string) (bool, error)
}

// RestorePolicy names which terminal transitions credit stock back. Staff
// restock returned goods by hand; cancellations and denials release the
// stock automatically.
type RestorePolicy struct {
	OnDeny   bool
	OnReturn bool
	OnCancel bool
}

func (p RestorePolicy) restores(to State) bool {
	switch to {
	case StateDenied:
		return p.OnDeny
	case StateReturned:
		return p.OnReturn
	case StateCancelled:
		return p.OnCancel
	}
	return false
}

// Engine moves orders between lifecycle states.
type Engine struct {
	store   MoveStore
	ledger  StockRestorer
	policy  RestorePolicy
	events  EventSink
	log     *zap.Logger
	service string
	now     func() time.Time
}

func NewEngine(store MoveStore, ledger StockRestorer, policy RestorePolicy, events EventSink, log *zap.Logger, service string) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		policy:  policy,
		events:  events,
		log:     log,
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Move relocates one order from one lifecycle state to another, attaching the
// state-specific attributes and, when policy says so, restoring its stock.
// The order addressed by (orderID, from) must exist; a mismatch between from
// and the order's actual state reads as "absent from that partition".
func (e *Engine) Move(ctx context.Context, orderID string, from, to State, attrs MoveAttrs) (Order, error) {
	if !CanTransition(from, to) {
		return Order{}, ErrInvalidTransition
	}

	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.State != from {
		return Order{}, ErrNotFound
	}

	now := e.now()
	if err := e.store.ApplyMove(ctx, orderID, from, to, attrs, now); err != nil {
		return Order{}, err
	}

	if e.policy.restores(to) {
		restored, err := e.ledger.RestoreBulk(ctx, orderID, o.ItemQtys(), "order "+string(to))
		if err != nil {
			// The move itself committed; the operator sees the failed credit.
			e.log.Error("stock restore failed after move",
				zap.String("order_id", orderID),
				zap.String("to", string(to)),
				zap.Error(err))
			return Order{}, err
		}
		if !restored {
			e.log.Info("stock already restored for order, skipping",
				zap.String("order_id", orderID))
		}
	}

	e.publishMoved(orderID, from, to, attrs.Actor)

	o = applyMoveLocally(o, to, attrs, now)
	return o, nil
}

// Reconcile sweeps for torn moves: orders whose stored state disagrees with
// the last transition-log entry. Each finding is logged as an error and
// pushed to the staff feed; nothing is repaired automatically since a retry
// could duplicate the damage.
func (e *Engine) Reconcile(ctx context.Context) ([]TornMoveError, error) {
	torn, err := e.store.FindStateMismatches(ctx)
	if err != nil {
		return nil, err
	}
	for i := range torn {
		t := torn[i]
		e.log.Error("torn move detected",
			zap.String("order_id", t.OrderID),
			zap.String("state", string(t.State)),
			zap.String("logged_state", string(t.LoggedState)))
		ev := Envelope{
			EventID:       uuid.NewString(),
			EventType:     EventTornMove,
			EventVersion:  1,
			OccurredAt:    e.now(),
			Producer:      e.service,
			CorrelationID: t.OrderID,
			Payload: kafkax.MustMarshal(TornMovePayload{
				OrderID:     t.OrderID,
				State:       t.State,
				LoggedState: t.LoggedState,
			}),
		}
		e.events.Publish(TopicTornMove, PartitionKey(t.OrderID), kafkax.MustMarshal(ev))
	}
	return torn, nil
}

func (e *Engine) publishMoved(orderID string, from, to State, actor string) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderMoved,
		EventVersion:  1,
		OccurredAt:    e.now(),
		Producer:      e.service,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(OrderMovedPayload{
			OrderID: orderID,
			From:    from,
			To:      to,
			Actor:   actor,
		}),
	}
	e.events.Publish(TopicOrderMoved, PartitionKey(orderID), kafkax.MustMarshal(ev))
}

func applyMoveLocally(o Order, to State, attrs MoveAttrs, now time.Time) Order {
	o.State = to
	o.UpdatedAt = now
	if attrs.DenialReason != "" {
		o.DenialReason = attrs.DenialReason
	}
	if attrs.ReturnReason != "" {
		o.ReturnReason = attrs.ReturnReason
	}
	if attrs.ReturnImage != "" {
		o.ReturnImage = attrs.ReturnImage
	}
	if attrs.CancellationReason != "" {
		o.CancellationReason = attrs.CancellationReason
	}
	stamp := now
	switch to {
	case StateAccepted:
		o.ApprovedAt = &stamp
	case StateDelivered:
		o.DeliveredAt = &stamp
	case StateDenied:
		o.DeniedAt = &stamp
	case StateReturned:
		o.ReturnedAt = &stamp
	case StateCancelled:
		o.CancelledAt = &stamp
	}
	return o
}
