package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

// Notification is one entry of the shared staff inbox.
type Notification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repo struct {
	DB *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Enqueue(ctx context.Context, n Notification) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO staff_notifications (id, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4)`,
		n.ID, n.Kind, n.Payload, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (r *Repo) ListUnread(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx,
		`SELECT id, kind, payload, read, created_at FROM staff_notifications
		 WHERE NOT read ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead is idempotent; marking twice reports success both times.
func (r *Repo) MarkRead(ctx context.Context, id string) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE staff_notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}
