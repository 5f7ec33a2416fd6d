package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hmaulana/go-order-engine/internal/orders"
	"github.com/hmaulana/go-order-engine/internal/redisx"
)

const (
	ReservationActive   = "active"
	ReservationReleased = "released"
	ReservationExpired  = "expired"
)

// Reservation is an advisory hold over a basket while its checkout is in
// flight. Holds live only in Redis and expire on their own; the ledger never
// consults them.
type Reservation struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Items     []orders.ItemQty `json:"items"`
	Status    string           `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type ReservationManager struct {
	R   *redis.Client
	Log *zap.Logger
	now func() time.Time
}

func NewReservationManager(r *redis.Client, log *zap.Logger) *ReservationManager {
	return &ReservationManager{R: r, Log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve places one hold key per basket item. If any item is already held by
// another in-flight checkout, every key placed so far is rolled back and the
// whole call fails; partial holds never survive.
func (m *ReservationManager) Reserve(ctx context.Context, userID string, items []orders.ItemQty, ttl time.Duration) (string, time.Time, error) {
	resvID := uuid.NewString()
	expiresAt := m.now().Add(ttl)

	placed := make([]string, 0, len(items))
	for _, it := range items {
		key := fmt.Sprintf(redisx.KeyReservationHold, userID, it.ProductID)
		ok, err := m.R.SetNX(ctx, key, resvID, ttl).Result()
		if err != nil {
			m.unwind(ctx, placed)
			return "", time.Time{}, fmt.Errorf("reserve: %w", err)
		}
		if !ok {
			m.unwind(ctx, placed)
			return "", time.Time{}, fmt.Errorf("%w: product %s already held", orders.ErrReservationConflict, it.ProductID)
		}
		placed = append(placed, key)
	}

	body, err := json.Marshal(items)
	if err != nil {
		m.unwind(ctx, placed)
		return "", time.Time{}, fmt.Errorf("reserve: %w", err)
	}
	key := fmt.Sprintf(redisx.KeyReservation, resvID)
	pipe := m.R.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    userID,
		"items":      string(body),
		"status":     ReservationActive,
		"expires_at": strconv.FormatInt(expiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		m.unwind(ctx, placed)
		return "", time.Time{}, fmt.Errorf("reserve: %w", err)
	}
	return resvID, expiresAt, nil
}

// Release drops the hold keys and marks the reservation released. Releasing a
// reservation that already expired is a no-op, not an error.
func (m *ReservationManager) Release(ctx context.Context, reservationID string) error {
	resv, err := m.load(ctx, reservationID)
	if err != nil {
		return err
	}
	if resv == nil || resv.Status != ReservationActive {
		return nil
	}

	keys := make([]string, 0, len(resv.Items))
	for _, it := range resv.Items {
		keys = append(keys, fmt.Sprintf(redisx.KeyReservationHold, resv.UserID, it.ProductID))
	}
	pipe := m.R.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.HSet(ctx, fmt.Sprintf(redisx.KeyReservation, reservationID), "status", ReservationReleased)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// Status reports a reservation's current standing. A missing hash means the
// TTL already swept it, which reads as expired.
func (m *ReservationManager) Status(ctx context.Context, reservationID string) (Reservation, error) {
	resv, err := m.load(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if resv == nil {
		return Reservation{ID: reservationID, Status: ReservationExpired}, nil
	}
	if resv.Status == ReservationActive && m.now().After(resv.ExpiresAt) {
		resv.Status = ReservationExpired
	}
	return *resv, nil
}

func (m *ReservationManager) load(ctx context.Context, reservationID string) (*Reservation, error) {
	vals, err := m.R.HGetAll(ctx, fmt.Sprintf(redisx.KeyReservation, reservationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	resv := &Reservation{ID: reservationID, UserID: vals["user_id"], Status: vals["status"]}
	if sec, err := strconv.ParseInt(vals["expires_at"], 10, 64); err == nil {
		resv.ExpiresAt = time.Unix(sec, 0).UTC()
	}
	if raw := vals["items"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &resv.Items); err != nil {
			return nil, fmt.Errorf("load reservation: %w", err)
		}
	}
	return resv, nil
}

func (m *ReservationManager) unwind(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := m.R.Del(ctx, keys...).Err(); err != nil {
		m.Log.Warn("reservation unwind failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
