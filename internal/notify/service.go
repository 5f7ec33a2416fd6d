package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/hmaulana/go-order-engine/internal/kafka"
	"github.com/hmaulana/go-order-engine/internal/orders"
	"github.com/hmaulana/go-order-engine/internal/redisx"
)

// Inbox is what the consumer needs from the notification store.
type Inbox interface {
	Enqueue(ctx context.Context, n Notification) error
}

// Service turns lifecycle events into staff inbox rows. Each event id is
// processed at most once per consumer group; redeliveries after a crash get
// dropped by the Redis dedup key.
type Service struct {
	inbox Inbox
	rdb   *redis.Client
	log   *zap.Logger
	group string
	now   func() time.Time
}

func NewService(inbox Inbox, rdb *redis.Client, log *zap.Logger, group string) *Service {
	return &Service{
		inbox: inbox,
		rdb:   rdb,
		log:   log,
		group: group,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent is the consumer handler. Returning nil commits the offset, so
// anything that must be retried returns an error instead.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var ev orders.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		// A malformed message will never parse; log and commit past it.
		s.log.Warn("dropping undecodable event",
			zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	if err := decodePayload(ev); err != nil {
		// A poisoned payload will never parse; log and commit past it.
		s.log.Warn("dropping event with undecodable payload",
			zap.String("event_id", ev.EventID), zap.String("event_type", ev.EventType), zap.Error(err))
		return nil
	}

	fresh, err := s.claim(ctx, ev.EventID)
	if err != nil {
		return err
	}
	if !fresh {
		s.log.Debug("duplicate event skipped", zap.String("event_id", ev.EventID))
		return nil
	}

	kind, ok := inboxKind(ev.EventType)
	if !ok {
		return nil
	}
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   ev.Payload,
		CreatedAt: s.now(),
	}
	if err := s.inbox.Enqueue(ctx, n); err != nil {
		// Free the claim so a retry is not mistaken for a duplicate.
		s.release(ctx, ev.EventID)
		return err
	}
	s.log.Info("staff notification enqueued",
		zap.String("kind", kind),
		zap.String("event_id", ev.EventID),
		zap.String("correlation_id", ev.CorrelationID))
	return nil
}

// decodePayload checks the payload parses as its event type before the raw
// bytes go into the inbox.
func decodePayload(ev orders.Envelope) error {
	var err error
	switch ev.EventType {
	case orders.EventOrderSubmitted:
		_, err = kafkax.UnwrapPayload[orders.OrderSubmittedPayload](ev.Payload)
	case orders.EventOrderMoved:
		_, err = kafkax.UnwrapPayload[orders.OrderMovedPayload](ev.Payload)
	case orders.EventRequestSubmitted:
		_, err = kafkax.UnwrapPayload[orders.RequestSubmittedPayload](ev.Payload)
	case orders.EventRequestDecided:
		_, err = kafkax.UnwrapPayload[orders.RequestDecidedPayload](ev.Payload)
	case orders.EventTornMove:
		_, err = kafkax.UnwrapPayload[orders.TornMovePayload](ev.Payload)
	}
	return err
}

// inboxKind maps event types to inbox entry kinds. Events staff do not need
// to see map to false.
func inboxKind(eventType string) (string, bool) {
	switch eventType {
	case orders.EventOrderSubmitted:
		return "order_submitted", true
	case orders.EventOrderMoved:
		return "order_moved", true
	case orders.EventRequestSubmitted:
		return "request_submitted", true
	case orders.EventRequestDecided:
		return "request_decided", true
	case orders.EventTornMove:
		return "torn_move", true
	default:
		return "", false
	}
}

func (s *Service) claim(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(redisx.KeyDedup, s.group, eventID)
	ok, err := s.rdb.SetNX(ctx, key, 1, redisx.TTLDedup).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

func (s *Service) release(ctx context.Context, eventID string) {
	key := fmt.Sprintf(redisx.KeyDedup, s.group, eventID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn("dedup release failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
