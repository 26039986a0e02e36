package tracking

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"delivro/internal/catalog"
	"delivro/models"
	"delivro/repository"
)

// Manager runs at most one feed per order and tears them all down on
// shutdown. Feeds relocate the assigned driver through the driver registry
// as they advance, so the fleet map and the customer tracking view agree.
type Manager struct {
	cfg     Config
	orders  repository.OrderRepositoryI
	drivers repository.DriverRepositoryI
	log     *logrus.Logger

	mu    sync.Mutex
	feeds map[string]*Feed
}

// NewManager creates a feed manager.
func NewManager(cfg Config, orders repository.OrderRepositoryI, drivers repository.DriverRepositoryI, log *logrus.Logger) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		orders:  orders,
		drivers: drivers,
		log:     log,
		feeds:   make(map[string]*Feed),
	}
}

// StartForOrder starts (or returns the already-running) feed for an
// OUT_FOR_DELIVERY order, animating from the store's coordinate to the
// order's destination. Orders in any other status fail with ConflictError:
// the feed is idle before dispatch and never restarts after a terminal
// transition.
func (m *Manager) StartForOrder(ctx context.Context, ord *models.Order, store *catalog.Store) (*Feed, error) {
	if ord == nil {
		return nil, models.Validationf("order is required")
	}
	if ord.Status != models.OrderStatusOutForDelivery {
		return nil, models.Conflictf("order %s is %s; tracking runs only while OUT_FOR_DELIVERY", ord.ID, ord.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.feeds[ord.ID]; ok {
		return f, nil
	}

	orderID := ord.ID
	status := func(ctx context.Context) (models.OrderStatus, error) {
		o, err := m.orders.GetByID(ctx, orderID)
		if err != nil {
			return "", err
		}
		if o == nil {
			return "", &models.NotFoundError{Kind: "order", ID: orderID}
		}
		return o.Status, nil
	}
	var relocate RelocateFunc
	if ord.DriverID != nil {
		driverID := *ord.DriverID
		relocate = func(ctx context.Context, lat, lng float64) error {
			return m.drivers.UpdatePosition(ctx, driverID, lat, lng)
		}
	}

	f := StartFeed(m.cfg, store.Lat, store.Lng, ord.Location.Lat, ord.Location.Lng, status, relocate)
	m.feeds[orderID] = f
	go m.reap(orderID, f)
	m.log.WithFields(logrus.Fields{"order": orderID, "steps": m.cfg.Steps}).Info("tracking feed started")
	return f, nil
}

func (m *Manager) reap(orderID string, f *Feed) {
	<-f.Done()
	m.mu.Lock()
	if m.feeds[orderID] == f {
		delete(m.feeds, orderID)
	}
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"order": orderID, "completed": f.Completed()}).Info("tracking feed finished")
}

// Feed returns the running feed for an order, if any.
func (m *Manager) Feed(orderID string) (*Feed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[orderID]
	return f, ok
}

// Latest returns the most recent point emitted for an order's running feed.
func (m *Manager) Latest(orderID string) (Point, bool) {
	if f, ok := m.Feed(orderID); ok {
		return f.Latest()
	}
	return Point{}, false
}

// StopFor cancels the feed for one order, if running.
func (m *Manager) StopFor(orderID string) {
	if f, ok := m.Feed(orderID); ok {
		f.Stop()
	}
}

// StopAll cancels every running feed and waits for them to shut down. After
// it returns, no feed goroutine references any order or driver.
func (m *Manager) StopAll() {
	m.mu.Lock()
	feeds := make([]*Feed, 0, len(m.feeds))
	for _, f := range m.feeds {
		feeds = append(feeds, f)
	}
	m.mu.Unlock()
	for _, f := range feeds {
		f.Stop()
		<-f.Done()
	}
}
