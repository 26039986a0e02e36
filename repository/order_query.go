package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"delivro/models"
)

// List returns all orders, most recently placed first.
func (r *OrderRepository) List(ctx context.Context) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY placed_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectOrders(ctx, rows)
}

// ListByPhone returns the orders placed from a phone number, most recent
// first. This backs the customer's order history view.
func (r *OrderRepository) ListByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE phone = ? ORDER BY placed_at DESC, id DESC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectOrders(ctx, rows)
}

// ListOrdersAdminParams represents filters and pagination for ListAdmin.
type ListOrdersAdminParams struct {
	Statuses     []models.OrderStatus
	Phone        *string
	PlacedFrom   *string // optional inclusive lower bound on placed_at
	PlacedTo     *string // optional inclusive upper bound on placed_at
	PageSize     int
	AfterSeconds int64  // keyset cursor: placed_at unix seconds
	AfterID      string // keyset cursor: order id
}

// ListAdmin returns orders matching filters ordered by placed_at desc,
// id desc, with keyset pagination.
func (r *OrderRepository) ListAdmin(ctx context.Context, p ListOrdersAdminParams) ([]models.Order, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any

	if len(p.Statuses) > 0 {
		placeholders := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if p.Phone != nil {
		where = append(where, "phone = ?")
		args = append(args, *p.Phone)
	}
	if p.PlacedFrom != nil {
		where = append(where, "placed_at >= ?")
		args = append(args, *p.PlacedFrom)
	}
	if p.PlacedTo != nil {
		where = append(where, "placed_at <= ?")
		args = append(args, *p.PlacedTo)
	}
	if p.AfterSeconds > 0 && p.AfterID != "" {
		where = append(where, "(CAST(strftime('%s', placed_at) AS INTEGER) < ? OR (CAST(strftime('%s', placed_at) AS INTEGER) = ? AND id < ?))")
		args = append(args, p.AfterSeconds, p.AfterSeconds, p.AfterID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// The sort key must match the cursor key exactly or paging skips rows.
	query += " ORDER BY CAST(strftime('%s', placed_at) AS INTEGER) DESC, id DESC LIMIT ?"
	args = append(args, p.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectOrders(ctx, rows)
}

func (r *OrderRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]models.Order, error) {
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadItems(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
