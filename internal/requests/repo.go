package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

type Repo struct {
	DB *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{DB: db}
}

const requestColumns = `id, order_id, kind, items, reason, image, state,
	decided_by, decided_at, decision_notes, created_at`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.OrderID, &r.Kind, &r.Items, &r.Reason, &r.Image,
		&r.State, &r.DecidedBy, &r.DecidedAt, &r.DecisionNotes, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, orders.ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("scan request: %w", err)
	}
	return r, nil
}

func (r *Repo) Insert(ctx context.Context, req Request) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO order_requests (id, order_id, kind, items, reason, image, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.OrderID, req.Kind, req.Items, req.Reason, req.Image, req.State, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Request, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM order_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// HasPending reports whether the order already has an open request of this
// kind, so a customer cannot stack duplicates.
func (r *Repo) HasPending(ctx context.Context, orderID string, kind Kind) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_requests WHERE order_id = $1 AND kind = $2 AND state = $3`,
		orderID, kind, StatePendingReview).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return n > 0, nil
}

// Decide flips a pending request to its decided state. The conditional WHERE
// makes concurrent decisions race safely; the loser sees zero rows and must
// report a conflict, not overwrite.
func (r *Repo) Decide(ctx context.Context, id string, to State, decidedBy, notes string, at time.Time) (Request, error) {
	row := r.DB.QueryRow(
		ctx,
		`UPDATE order_requests
		 SET state = $2, decided_by = $3, decision_notes = $4, decided_at = $5
		 WHERE id = $1 AND state = $6
		 RETURNING `+requestColumns,
		id, to, decidedBy, notes, at, StatePendingReview)
	req, err := scanRequest(row)
	if errors.Is(err, orders.ErrNotFound) {
		// Distinguish "no such request" from "already decided".
		if _, gerr := r.Get(ctx, id); gerr == nil {
			return Request{}, fmt.Errorf("%w: request %s already decided", orders.ErrConflict, id)
		}
		return Request{}, orders.ErrNotFound
	}
	return req, err
}

func (r *Repo) ListPending(ctx context.Context) ([]Request, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+requestColumns+` FROM order_requests
		 WHERE state = $1 ORDER BY created_at`, StatePendingReview)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
