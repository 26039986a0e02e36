package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"delivro/models"
)

// OrderRepository is the authoritative store for Order entities.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, store_id, phone, status, subtotal, delivery_fee, discount, total, payment_method, dest_lat, dest_lng, address, zone, delivery_note, driver_id, placed_at`

// Create inserts a new order with its items. It validates the cart and the
// customer location, assigns an id, stamps status PREPARING and the
// placement time, and computes total = subtotal + delivery_fee - discount.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if len(o.Items) == 0 {
		return nil, models.Validationf("order has no items")
	}
	for _, it := range o.Items {
		if it.Quantity < 1 {
			return nil, models.Validationf("item %s: quantity must be at least 1", it.ProductID)
		}
	}
	if o.Location.Address == "" && o.Location.Lat == 0 && o.Location.Lng == 0 {
		return nil, models.Validationf("customer location is required")
	}
	if o.Subtotal < 0 || o.DeliveryFee < 0 || o.Discount < 0 {
		return nil, models.Validationf("amounts must be non-negative")
	}
	total := o.Subtotal + o.DeliveryFee - o.Discount
	if total < 0 {
		return nil, models.Validationf("discount exceeds order amount")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	id := models.NewOrderID()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, store_id, phone, status, subtotal, delivery_fee, discount, total, payment_method, dest_lat, dest_lng, address, zone, delivery_note) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, o.StoreID, o.Phone, string(models.OrderStatusPreparing), o.Subtotal, o.DeliveryFee, o.Discount, total,
		string(o.PaymentMethod), o.Location.Lat, o.Location.Lng, o.Location.Address, nullString(o.Location.Zone), nullString(o.Location.Note))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, note) VALUES (?,?,?,?,?,?)`,
			id, it.ProductID, it.Name, it.UnitPrice, it.Quantity, nullString(it.Note)); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	// Query back to capture placed_at.
	return r.GetByID(ctx, id)
}

// GetByID fetches an order and its items. Returns (nil, nil) when missing.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// TransitionStatus applies the order state machine: it moves the order to
// the requested status if that move is legal from the current one. The
// update is guarded on the current status, so of two concurrent
// mutually-exclusive transitions exactly one succeeds; the loser observes
// InvalidTransitionError.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for {
		var cur string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Kind: "order", ID: id}
		}
		if err != nil {
			return nil, err
		}
		from := models.OrderStatus(cur)
		if !models.CanTransition(from, to) {
			return nil, &models.InvalidTransitionError{OrderID: id, From: from, To: to}
		}
		res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status = ?`, string(to), id, cur)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 0 {
			// Lost a race with a concurrent transition; re-read and
			// re-validate against the new current status.
			continue
		}
		return r.GetByID(ctx, id)
	}
}

func (r *OrderRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, product_id, name, unit_price, quantity, note FROM order_items WHERE order_id = ? ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.OrderItem
		var note sql.NullString
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity, &note); err != nil {
			return err
		}
		it.Note = note.String
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status, payment string
	var zone, note sql.NullString
	var driverID sql.NullInt64
	err := row.Scan(&o.ID, &o.StoreID, &o.Phone, &status, &o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total,
		&payment, &o.Location.Lat, &o.Location.Lng, &o.Location.Address, &zone, &note, &driverID, &o.PlacedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.PaymentMethod = models.PaymentMethod(payment)
	o.Location.Zone = zone.String
	o.Location.Note = note.String
	if driverID.Valid {
		v := driverID.Int64
		o.DriverID = &v
	}
	return &o, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
