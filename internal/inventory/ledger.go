package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

// Ledger is the committed, durable stock count. All decrements and restores
// run as single transactions with row locks; a rejected checkout leaves the
// counts untouched.
type Ledger struct {
	DB *pgxpool.Pool
}

func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{DB: db}
}

// Validate answers "could this basket be covered right now". It takes no
// locks, so its answer can go stale before checkout commits.
func (l *Ledger) Validate(ctx context.Context, items []orders.ItemQty) ([]orders.StockCheck, error) {
	ids := productIDs(items)
	rows, err := l.DB.Query(ctx,
		`SELECT id, stock FROM products WHERE id = ANY($1) AND active`, ids)
	if err != nil {
		return nil, fmt.Errorf("validate stock: %w", err)
	}
	defer rows.Close()

	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("validate stock: %w", err)
		}
		stock[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("validate stock: %w", err)
	}

	out := make([]orders.StockCheck, 0, len(items))
	for _, it := range items {
		avail, known := stock[it.ProductID]
		out = append(out, orders.StockCheck{
			ProductID: it.ProductID,
			Requested: it.Qty,
			Available: avail,
			OK:        known && avail >= it.Qty,
		})
	}
	return out, nil
}

// DecrementBulk debits every line item in one transaction. Rows are locked in
// product-id order so concurrent checkouts cannot deadlock each other. If any
// line falls short the whole transaction rolls back and the error lists every
// short-falling item, not just the first.
func (l *Ledger) DecrementBulk(ctx context.Context, orderID string, items []orders.ItemQty) error {
	tx, err := l.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	defer tx.Rollback(ctx)

	sorted := make([]orders.ItemQty, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	var short []orders.Shortfall
	for _, it := range sorted {
		var avail int
		err := tx.QueryRow(ctx,
			`SELECT stock FROM products WHERE id = $1 AND active FOR UPDATE`,
			it.ProductID).Scan(&avail)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: unknown product %s", orders.ErrInvalidInput, it.ProductID)
		}
		if err != nil {
			return fmt.Errorf("decrement stock: lock %s: %w", it.ProductID, err)
		}
		if avail < it.Qty {
			short = append(short, orders.Shortfall{
				ProductID: it.ProductID,
				Required:  it.Qty,
				Available: avail,
			})
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2`,
			it.Qty, it.ProductID); err != nil {
			return fmt.Errorf("decrement stock: %s: %w", it.ProductID, err)
		}
	}
	if len(short) > 0 {
		return &orders.InsufficientStockError{Items: short}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("decrement stock: commit: %w", err)
	}
	return nil
}

// RestoreBulk credits an order's items back to the ledger at most once.
// The stock_restorations insert is the guard: if a row for this order already
// exists the call is a no-op and reports (false, nil).
func (l *Ledger) RestoreBulk(ctx context.Context, orderID string, items []orders.ItemQty, reason string) (bool, error) {
	tx, err := l.DB.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO stock_restorations (order_id, reason) VALUES ($1, $2)
		 ON CONFLICT (order_id) DO NOTHING`, orderID, reason)
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	sorted := make([]orders.ItemQty, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, it := range sorted {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`,
			it.Qty, it.ProductID); err != nil {
			return false, fmt.Errorf("restore stock: %s: %w", it.ProductID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("restore stock: commit: %w", err)
	}
	return true, nil
}

// ReadLevels reports current counts for a set of products. Unknown ids are
// simply absent from the result.
func (l *Ledger) ReadLevels(ctx context.Context, ids []string) ([]orders.StockLevel, error) {
	rows, err := l.DB.Query(ctx,
		`SELECT id, stock, active FROM products WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("read stock: %w", err)
	}
	defer rows.Close()

	var out []orders.StockLevel
	for rows.Next() {
		var lv orders.StockLevel
		if err := rows.Scan(&lv.ProductID, &lv.Quantity, &lv.Active); err != nil {
			return nil, fmt.Errorf("read stock: %w", err)
		}
		out = append(out, lv)
	}
	return out, rows.Err()
}

// Products loads pricing and sale metadata for checkout.
func (l *Ledger) Products(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	rows, err := l.DB.Query(ctx,
		`SELECT id, sku, name, category, price_cents, stock, active, created_at, updated_at
		 FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]orders.Product, len(ids))
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.PriceCents,
			&p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func productIDs(items []orders.ItemQty) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
