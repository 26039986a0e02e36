package repository

import (
	"context"

	"delivro/models"
)

// OrderRepositoryI defines operations on Order entities. It is the
// authoritative order store: orders are created by checkout and mutated only
// via status transitions and driver assignment, never deleted.
type OrderRepositoryI interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]models.Order, error)
	TransitionStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error)
}

// DriverRepositoryI defines operations on Driver entities: the fleet
// registry. Assignment fields (status BUSY + current_order_id) are written
// through the dispatch controller, not through SetStatus.
type DriverRepositoryI interface {
	Create(ctx context.Context, d *models.Driver) (*models.Driver, error)
	GetByID(ctx context.Context, id int64) (*models.Driver, error)
	List(ctx context.Context) ([]models.Driver, error)
	ListAvailable(ctx context.Context, lat, lng float64) ([]models.Driver, error)
	SetStatus(ctx context.Context, id int64, status models.DriverStatus, orderID *string) error
	UpdatePosition(ctx context.Context, id int64, lat, lng float64) error
}

// ProfileRepositoryI defines operations on customer profiles.
type ProfileRepositoryI interface {
	Upsert(ctx context.Context, p *models.Profile) (*models.Profile, error)
	GetByPhone(ctx context.Context, phone string) (*models.Profile, error)
	SetVerified(ctx context.Context, phone string, verified bool) error
}
