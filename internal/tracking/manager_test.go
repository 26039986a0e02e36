package tracking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivro/internal/catalog"
	"delivro/internal/testutil"
	"delivro/models"
	"delivro/repository"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedOutForDelivery(t *testing.T, orders *repository.OrderRepository) *models.Order {
	t.Helper()
	ctx := context.Background()
	ord, err := orders.Create(ctx, &models.Order{
		StoreID:     "s1",
		Phone:       "777123456",
		Subtotal:    3200,
		DeliveryFee: 500,
		Location:    models.Location{Lat: 15.3547, Lng: 44.2066, Address: "Hadda Street", Zone: "hadda"},
		Items:       []models.OrderItem{{ProductID: "p2", Name: "Mandi Chicken", UnitPrice: 3200, Quantity: 1}},
	})
	require.NoError(t, err)
	ord, err = orders.TransitionStatus(ctx, ord.ID, models.OrderStatusOutForDelivery)
	require.NoError(t, err)
	return ord
}

func TestManagerLifecycle(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "trackmanager")
	orders := repository.NewOrderRepository(d)
	drivers := repository.NewDriverRepository(d)
	cat := catalog.Seed()
	store, err := cat.StoreByID("s1")
	require.NoError(t, err)

	m := NewManager(Config{Steps: 5, Tick: time.Millisecond}, orders, drivers, quietLogger())
	ord := seedOutForDelivery(t, orders)

	f, err := m.StartForOrder(context.Background(), ord, store)
	require.NoError(t, err)

	// Starting again while running returns the same feed.
	again, err := m.StartForOrder(context.Background(), ord, store)
	require.NoError(t, err)
	assert.Same(t, f, again)

	<-f.Done()
	assert.True(t, f.Completed())

	// The reaper clears the registry once the feed is done.
	assert.Eventually(t, func() bool {
		_, ok := m.Feed(ord.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestManagerRejectsUndispatchedOrder(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "trackreject")
	orders := repository.NewOrderRepository(d)
	drivers := repository.NewDriverRepository(d)
	cat := catalog.Seed()
	store, err := cat.StoreByID("s1")
	require.NoError(t, err)

	m := NewManager(Config{Steps: 5, Tick: time.Millisecond}, orders, drivers, quietLogger())

	ord, err := orders.Create(context.Background(), &models.Order{
		StoreID:     "s1",
		Phone:       "777123456",
		Subtotal:    1800,
		DeliveryFee: 500,
		Location:    models.Location{Lat: 15.35, Lng: 44.20, Address: "Hadda Street"},
		Items:       []models.OrderItem{{ProductID: "p1", Name: "Yemeni Saltah", UnitPrice: 1800, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = m.StartForOrder(context.Background(), ord, store)
	assert.True(t, models.IsConflict(err), "preparing order: %v", err)
}

func TestManagerStopAll(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "trackstopall")
	orders := repository.NewOrderRepository(d)
	drivers := repository.NewDriverRepository(d)
	cat := catalog.Seed()
	store, err := cat.StoreByID("s1")
	require.NoError(t, err)

	m := NewManager(Config{Steps: 10000, Tick: time.Millisecond}, orders, drivers, quietLogger())
	ord := seedOutForDelivery(t, orders)

	f, err := m.StartForOrder(context.Background(), ord, store)
	require.NoError(t, err)

	m.StopAll()
	select {
	case <-f.Done():
	default:
		t.Fatalf("StopAll returned before the feed shut down")
	}
	assert.False(t, f.Completed())
}

func TestJitterMovesIdleSkipsBusy(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "trackjitter")
	// One pooled connection: jitter goroutines and test reads interleave
	// without tripping shared-cache table locks.
	d.SetMaxOpenConns(1)
	orders := repository.NewOrderRepository(d)
	drivers := repository.NewDriverRepository(d)
	ctx := context.Background()

	idle, err := drivers.Create(ctx, &models.Driver{
		Name: "Idle", Phone: "777000111", Vehicle: models.VehicleMotorcycle,
		Status: models.DriverStatusActive, Lat: 15.35, Lng: 44.20,
	})
	require.NoError(t, err)

	busy, err := drivers.Create(ctx, &models.Driver{
		Name: "Busy", Phone: "777000222", Vehicle: models.VehicleCar,
		Status: models.DriverStatusActive, Lat: 15.35, Lng: 44.20,
	})
	require.NoError(t, err)
	ord := seedOutForDelivery(t, orders)
	require.NoError(t, drivers.SetStatus(ctx, busy.ID, models.DriverStatusBusy, &ord.ID))

	j := NewJitter(drivers, 2*time.Millisecond)
	j.Track(idle.ID)
	j.Track(busy.ID)

	assert.Eventually(t, func() bool {
		got, err := drivers.GetByID(ctx, idle.ID)
		return err == nil && got != nil && (got.Lat != 15.35 || got.Lng != 44.20)
	}, 2*time.Second, 5*time.Millisecond, "idle driver never wobbled")

	j.Stop()

	gotBusy, err := drivers.GetByID(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.35, gotBusy.Lat, "busy driver must not be moved by jitter")
	assert.Equal(t, 44.20, gotBusy.Lng)

	// The wobble is a random walk of per-tick deltas; over a short run it
	// stays near the home position.
	gotIdle, err := drivers.GetByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.InDelta(t, 15.35, gotIdle.Lat, 0.05)
	assert.InDelta(t, 44.20, gotIdle.Lng, 0.05)
}

func TestJitterStopHaltsMovement(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "trackjitterstop")
	d.SetMaxOpenConns(1)
	drivers := repository.NewDriverRepository(d)
	ctx := context.Background()

	drv, err := drivers.Create(ctx, &models.Driver{
		Name: "Idle", Phone: "777000111", Vehicle: models.VehicleBicycle,
		Status: models.DriverStatusActive, Lat: 10, Lng: 10,
	})
	require.NoError(t, err)

	j := NewJitter(drivers, 2*time.Millisecond)
	j.Track(drv.ID)
	j.Stop()

	after, err := drivers.GetByID(ctx, drv.ID)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	final, err := drivers.GetByID(ctx, drv.ID)
	require.NoError(t, err)
	assert.Equal(t, after.Lat, final.Lat, "position must not change after Stop")
	assert.Equal(t, after.Lng, final.Lng)
}
