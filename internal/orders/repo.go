package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the order record store. One orders table holds every lifecycle
// state; the state column plus the append-only order_transitions log replace
// the per-state collections of the original layout, so an order keeps one
// identifier for its whole life.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id, state,
	subtotal_cents, delivery_fee_cents, total_cents,
	contact_name, contact_phone, address,
	payment_method, payment_ref, payment_amount_cents, payment_proof,
	notes, denial_reason, return_reason, return_image, cancellation_reason,
	created_at, updated_at, approved_at, delivered_at, denied_at, returned_at, cancelled_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.State,
		&o.SubtotalCents, &o.DeliveryFeeCents, &o.TotalCents,
		&o.ContactName, &o.ContactPhone, &o.Address,
		&o.Payment.Method, &o.Payment.Ref, &o.Payment.AmountCents, &o.Payment.Proof,
		&o.Notes, &o.DenialReason, &o.ReturnReason, &o.ReturnImage, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt, &o.ApprovedAt, &o.DeliveredAt, &o.DeniedAt, &o.ReturnedAt, &o.CancelledAt,
	)
	return o, err
}

func (r *Repo) Insert(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin insert order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		o.ID, o.OrderNumber, o.UserID, o.State,
		o.SubtotalCents, o.DeliveryFeeCents, o.TotalCents,
		o.ContactName, o.ContactPhone, o.Address,
		o.Payment.Method, o.Payment.Ref, o.Payment.AmountCents, o.Payment.Proof,
		o.Notes, o.DenialReason, o.ReturnReason, o.ReturnImage, o.CancellationReason,
		o.CreatedAt, o.UpdatedAt, o.ApprovedAt, o.DeliveredAt, o.DeniedAt, o.ReturnedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, qty, unit_price_cents, category)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Qty, it.UnitPriceCents, it.Category,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_transitions (order_id, from_state, to_state, actor, occurred_at)
		VALUES ($1, '', $2, $3, $4)`,
		o.ID, o.State, o.UserID, o.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert creation transition: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	items, err := r.itemsFor(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) itemsFor(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty, unit_price_cents, category
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPriceCents, &it.Category); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) ListByState(ctx context.Context, state State) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE state=$1 ORDER BY created_at DESC`, string(state))
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) list(ctx context.Context, query string, arg any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := r.itemsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

// MoveAttrs carries the state-specific fields a transition attaches.
type MoveAttrs struct {
	Actor              string
	Note               string
	DenialReason       string
	ReturnReason       string
	ReturnImage        string
	CancellationReason string
}

// stateStampCol maps a target state to its entry-timestamp column.
var stateStampCol = map[State]string{
	StateAccepted:  "approved_at",
	StateDelivered: "delivered_at",
	StateDenied:    "denied_at",
	StateReturned:  "returned_at",
	StateCancelled: "cancelled_at",
}

// ApplyMove flips the order's state and appends the transition log row in one
// transaction. The WHERE state=$from guard makes concurrent movers lose
// cleanly with ErrNotFound ("no such order in that partition") instead of
// clobbering each other.
func (r *Repo) ApplyMove(ctx context.Context, orderID string, from, to State, attrs MoveAttrs, now time.Time) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin move: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	set := `state=$3, updated_at=$4,
		denial_reason = CASE WHEN $5 <> '' THEN $5 ELSE denial_reason END,
		return_reason = CASE WHEN $6 <> '' THEN $6 ELSE return_reason END,
		return_image = CASE WHEN $7 <> '' THEN $7 ELSE return_image END,
		cancellation_reason = CASE WHEN $8 <> '' THEN $8 ELSE cancellation_reason END`
	if col, ok := stateStampCol[to]; ok {
		set += `, ` + col + `=$4`
	}

	tag, err := tx.Exec(ctx, `UPDATE orders SET `+set+` WHERE id=$1 AND state=$2`,
		orderID, from, to, now,
		attrs.DenialReason, attrs.ReturnReason, attrs.ReturnImage, attrs.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("move order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_transitions (order_id, from_state, to_state, actor, note, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		orderID, from, to, attrs.Actor, attrs.Note, now,
	); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) Transitions(ctx context.Context, orderID string) ([]Transition, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, from_state, to_state, actor, note, occurred_at
		FROM order_transitions WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.OrderID, &t.From, &t.To, &t.Actor, &t.Note, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindStateMismatches compares each order against the last entry of its
// transition log. A mismatch means a move tore somewhere outside a
// transaction (manual edit, partial restore) and needs an operator.
func (r *Repo) FindStateMismatches(ctx context.Context) ([]TornMoveError, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.state, t.to_state
		FROM orders o
		JOIN LATERAL (
			SELECT to_state FROM order_transitions
			WHERE order_id = o.id ORDER BY id DESC LIMIT 1
		) t ON TRUE
		WHERE o.state <> t.to_state`)
	if err != nil {
		return nil, fmt.Errorf("find state mismatches: %w", err)
	}
	defer rows.Close()

	var out []TornMoveError
	for rows.Next() {
		var t TornMoveError
		if err := rows.Scan(&t.OrderID, &t.State, &t.LoggedState); err != nil {
			return nil, fmt.Errorf("scan mismatch: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
