// Package dispatch couples order and driver state. It is the single funnel
// for assignment and status transitions that touch both aggregates: no other
// component may set an order's driver or a driver's BUSY status.
package dispatch

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"delivro/internal/catalog"
	"delivro/internal/geo"
	"delivro/models"
	"delivro/repository"
)

// Controller executes dispatch operations atomically. A single mutex
// serializes them, and every cross-entity change runs inside one SQL
// transaction with status-guarded updates, so no interleaving can leave an
// order OUT_FOR_DELIVERY without a BUSY driver or a BUSY driver without a
// matching order.
type Controller struct {
	mu      sync.Mutex
	db      *sql.DB
	orders  *repository.OrderRepository
	drivers *repository.DriverRepository
	catalog *catalog.Catalog
}

// NewController creates a controller over the shared database handle.
func NewController(db *sql.DB, orders *repository.OrderRepository, drivers *repository.DriverRepository, cat *catalog.Catalog) *Controller {
	return &Controller{db: db, orders: orders, drivers: drivers, catalog: cat}
}

// PlaceItem is one cart line of a checkout request.
type PlaceItem struct {
	ProductID string
	Quantity  int
	Note      string
}

// PlaceInput is a checkout request. The caller is responsible for having
// verified the customer's phone; the controller trusts it.
type PlaceInput struct {
	Phone         string
	StoreID       string
	Items         []PlaceItem
	Location      models.Location
	PaymentMethod models.PaymentMethod
	CouponCode    string
}

// Place resolves the cart against the catalog, prices the order (zone fee
// with store-fee fallback, coupon discount) and persists it in PREPARING.
func (c *Controller) Place(ctx context.Context, in PlaceInput) (*models.Order, error) {
	store, err := c.catalog.StoreByID(in.StoreID)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, models.Validationf("order has no items")
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return nil, models.Validationf("item %s: quantity must be at least 1", line.ProductID)
		}
		p, err := c.catalog.ProductByID(in.StoreID, line.ProductID)
		if err != nil {
			return nil, err
		}
		subtotal += p.Price * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			Note:      line.Note,
		})
	}

	fee := store.DeliveryFee
	if zoneFee, ok := geo.ZoneFee(in.Location.Zone); ok {
		fee = zoneFee
	}
	if fee == 0 {
		fee = geo.DefaultDeliveryFee
	}

	var discount int64
	if in.CouponCode != "" {
		cp, ok := c.catalog.CouponByCode(in.CouponCode)
		if !ok {
			return nil, models.Validationf("unknown coupon code %q", in.CouponCode)
		}
		discount = cp.DiscountFor(subtotal, fee)
	}

	method := in.PaymentMethod
	if method == "" {
		method = models.PaymentCash
	}
	switch method {
	case models.PaymentCash, models.PaymentWallet, models.PaymentCard:
	default:
		return nil, models.Validationf("unknown payment method %q", method)
	}

	return c.orders.Create(ctx, &models.Order{
		Items:         items,
		Subtotal:      subtotal,
		DeliveryFee:   fee,
		Discount:      discount,
		Location:      in.Location,
		PaymentMethod: method,
		Phone:         in.Phone,
		StoreID:       in.StoreID,
	})
}

// Assign dispatches a driver to an order. Preconditions: the order is
// PREPARING and the driver is ACTIVE; otherwise ConflictError. On success
// the order moves to OUT_FOR_DELIVERY carrying the driver id, and in the
// same transaction the driver becomes BUSY with its current order set.
func (c *Controller) Assign(ctx context.Context, orderID string, driverID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignLocked(ctx, orderID, driverID)
}

// AssignNearest dispatches the ACTIVE driver nearest to the order's store.
// When no driver is ACTIVE it fails with ConflictError and the order stays
// PREPARING; there is no retry loop, the operator re-invokes.
func (c *Controller) AssignNearest(ctx context.Context, orderID string) (*models.Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ord, err := c.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	store, err := c.catalog.StoreByID(ord.StoreID)
	if err != nil {
		return nil, err
	}
	avail, err := c.drivers.ListAvailable(ctx, store.Lat, store.Lng)
	if err != nil {
		return nil, err
	}
	if len(avail) == 0 {
		return nil, models.Conflictf("no active drivers available")
	}
	d := avail[0]
	if err := c.assignLocked(ctx, orderID, d.ID); err != nil {
		return nil, err
	}
	return c.drivers.GetByID(ctx, d.ID)
}

func (c *Controller) assignLocked(ctx context.Context, orderID string, driverID int64) error {
	ord, err := c.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status != models.OrderStatusPreparing {
		return models.Conflictf("order %s is %s, not PREPARING", orderID, ord.Status)
	}
	drv, err := c.getDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if drv.Status != models.DriverStatusActive {
		return models.Conflictf("driver %d is %s, not ACTIVE", driverID, drv.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, driver_id = ? WHERE id = ? AND status = ? AND driver_id IS NULL`,
		string(models.OrderStatusOutForDelivery), driverID, orderID, string(models.OrderStatusPreparing))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return models.Conflictf("order %s was assigned concurrently", orderID)
	}
	res, err = tx.ExecContext(ctx, `UPDATE drivers SET status = ?, current_order_id = ? WHERE id = ? AND status = ?`,
		string(models.DriverStatusBusy), orderID, driverID, string(models.DriverStatusActive))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return models.Conflictf("driver %d became unavailable", driverID)
	}
	return tx.Commit()
}

// Complete marks an OUT_FOR_DELIVERY order DELIVERED and releases its
// driver back to ACTIVE, accumulating the driver's distance and earnings.
func (c *Controller) Complete(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ord, err := c.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status != models.OrderStatusOutForDelivery {
		return &models.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: models.OrderStatusDelivered}
	}

	var distanceKm float64
	if store, err := c.catalog.StoreByID(ord.StoreID); err == nil {
		distanceKm = geo.HaversineKm(store.Lat, store.Lng, ord.Location.Lat, ord.Location.Lng)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(models.OrderStatusDelivered), orderID, string(models.OrderStatusOutForDelivery))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return &models.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: models.OrderStatusDelivered}
	}
	if ord.DriverID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE drivers SET status = ?, current_order_id = NULL, total_distance_km = total_distance_km + ?, wallet_balance = wallet_balance + ? WHERE id = ?`,
			string(models.DriverStatusActive), distanceKm, ord.DeliveryFee, *ord.DriverID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Cancel aborts an order from PREPARING or OUT_FOR_DELIVERY. The order
// record remains as a terminal CANCELLED entry; an assigned driver is
// released to ACTIVE with its current order cleared.
func (c *Controller) Cancel(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ord, err := c.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !models.CanTransition(ord.Status, models.OrderStatusCancelled) {
		return &models.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: models.OrderStatusCancelled}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status IN (?,?)`,
		string(models.OrderStatusCancelled), orderID, string(models.OrderStatusPreparing), string(models.OrderStatusOutForDelivery))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return &models.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: models.OrderStatusCancelled}
	}
	if ord.DriverID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE drivers SET status = ?, current_order_id = NULL WHERE id = ?`,
			string(models.DriverStatusActive), *ord.DriverID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *Controller) getOrder(ctx context.Context, id string) (*models.Order, error) {
	ord, err := c.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, &models.NotFoundError{Kind: "order", ID: id}
	}
	return ord, nil
}

func (c *Controller) getDriver(ctx context.Context, id int64) (*models.Driver, error) {
	drv, err := c.drivers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if drv == nil {
		return nil, &models.NotFoundError{Kind: "driver", ID: strconv.FormatInt(id, 10)}
	}
	return drv, nil
}
