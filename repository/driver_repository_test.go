package repository

import (
	"context"
	"testing"

	"delivro/internal/testutil"
	"delivro/models"
)

func newTestDriver(name string, lat, lng float64) *models.Driver {
	return &models.Driver{
		Name:    name,
		Phone:   "777000111",
		Vehicle: models.VehicleMotorcycle,
		Status:  models.DriverStatusActive,
		Lat:     lat,
		Lng:     lng,
	}
}

func TestDriverCreateAndGet(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "drivercreate")
	repo := NewDriverRepository(d)
	ctx := context.Background()

	drv, err := repo.Create(ctx, newTestDriver("Ahmed", 15.35, 44.20))
	if err != nil {
		t.Fatalf("create driver: %v", err)
	}
	if drv.ID == 0 {
		t.Fatalf("driver id not assigned")
	}

	got, err := repo.GetByID(ctx, drv.ID)
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if got == nil || got.Name != "Ahmed" || got.Status != models.DriverStatusActive {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.CurrentOrderID != nil {
		t.Errorf("fresh driver must not carry an order")
	}

	missing, err := repo.GetByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("missing driver should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestDriverCreateValidation(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "drivervalidate")
	repo := NewDriverRepository(d)
	ctx := context.Background()

	badVehicle := newTestDriver("Sami", 0, 0)
	badVehicle.Vehicle = "rocket"
	if _, err := repo.Create(ctx, badVehicle); !models.IsValidation(err) {
		t.Errorf("unknown vehicle: want ValidationError, got %v", err)
	}

	busy := newTestDriver("Sami", 0, 0)
	busy.Status = models.DriverStatusBusy
	if _, err := repo.Create(ctx, busy); !models.IsValidation(err) {
		t.Errorf("register as BUSY: want ValidationError, got %v", err)
	}

	unspecified := newTestDriver("Sami", 0, 0)
	unspecified.Status = ""
	drv, err := repo.Create(ctx, unspecified)
	if err != nil {
		t.Fatalf("create with empty status: %v", err)
	}
	if drv.Status != models.DriverStatusOffline {
		t.Errorf("empty status should default to OFFLINE, got %s", drv.Status)
	}
}

func TestListAvailableOrderedByDistance(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "driveravailable")
	repo := NewDriverRepository(d)
	ctx := context.Background()

	far, err := repo.Create(ctx, newTestDriver("Far", 16.0, 44.2))
	if err != nil {
		t.Fatalf("create far: %v", err)
	}
	near, err := repo.Create(ctx, newTestDriver("Near", 15.36, 44.2))
	if err != nil {
		t.Fatalf("create near: %v", err)
	}
	off := newTestDriver("Off", 15.35, 44.2)
	off.Status = models.DriverStatusOffline
	if _, err := repo.Create(ctx, off); err != nil {
		t.Fatalf("create offline: %v", err)
	}

	avail, err := repo.ListAvailable(ctx, 15.35, 44.20)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(avail) != 2 {
		t.Fatalf("len = %d, want 2 (OFFLINE excluded)", len(avail))
	}
	if avail[0].ID != near.ID || avail[1].ID != far.ID {
		t.Fatalf("order = [%d %d], want [%d %d]", avail[0].ID, avail[1].ID, near.ID, far.ID)
	}
}

func TestListAvailableTieBreak(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "drivertiebreak")
	repo := NewDriverRepository(d)
	ctx := context.Background()

	a, err := repo.Create(ctx, newTestDriver("A", 15.35, 44.20))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := repo.Create(ctx, newTestDriver("B", 15.35, 44.20))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	avail, err := repo.ListAvailable(ctx, 15.35, 44.20)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(avail) != 2 || avail[0].ID != a.ID || avail[1].ID != b.ID {
		t.Fatalf("equidistant drivers must order by id asc: %+v", avail)
	}
}

func TestSetStatusRules(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "driverstatus")
	drivers := NewDriverRepository(d)
	orders := NewOrderRepository(d)
	ctx := context.Background()

	drv, err := drivers.Create(ctx, newTestDriver("Ahmed", 15.35, 44.20))
	if err != nil {
		t.Fatalf("create driver: %v", err)
	}
	ord, err := orders.Create(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusBusy, nil); !models.IsValidation(err) {
		t.Errorf("BUSY without order: want ValidationError, got %v", err)
	}
	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusActive, &ord.ID); !models.IsValidation(err) {
		t.Errorf("ACTIVE with order: want ValidationError, got %v", err)
	}
	if err := drivers.SetStatus(ctx, 9999, models.DriverStatusOffline, nil); !models.IsNotFound(err) {
		t.Errorf("unknown driver: want NotFoundError, got %v", err)
	}

	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusBusy, &ord.ID); err != nil {
		t.Fatalf("set BUSY: %v", err)
	}
	got, _ := drivers.GetByID(ctx, drv.ID)
	if got.Status != models.DriverStatusBusy || got.CurrentOrderID == nil || *got.CurrentOrderID != ord.ID {
		t.Fatalf("busy state not recorded: %+v", got)
	}

	// Release belongs to the dispatch transaction that closes the order;
	// flipping a carrying driver directly must not strand the delivery.
	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusActive, nil); !models.IsConflict(err) {
		t.Errorf("flip BUSY to ACTIVE: want ConflictError, got %v", err)
	}
	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusOffline, nil); !models.IsConflict(err) {
		t.Errorf("flip BUSY to OFFLINE: want ConflictError, got %v", err)
	}
	other := "DLV-OTHER1"
	if err := drivers.SetStatus(ctx, drv.ID, models.DriverStatusBusy, &other); !models.IsConflict(err) {
		t.Errorf("retarget BUSY driver: want ConflictError, got %v", err)
	}
	got, _ = drivers.GetByID(ctx, drv.ID)
	if got.Status != models.DriverStatusBusy || got.CurrentOrderID == nil || *got.CurrentOrderID != ord.ID {
		t.Fatalf("busy state must survive rejected flips: %+v", got)
	}
}

func TestUpdatePosition(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "driverposition")
	repo := NewDriverRepository(d)
	ctx := context.Background()

	drv, err := repo.Create(ctx, newTestDriver("Ahmed", 15.35, 44.20))
	if err != nil {
		t.Fatalf("create driver: %v", err)
	}
	if err := repo.UpdatePosition(ctx, drv.ID, 15.40, 44.25); err != nil {
		t.Fatalf("update position: %v", err)
	}
	got, _ := repo.GetByID(ctx, drv.ID)
	if got.Lat != 15.40 || got.Lng != 44.25 {
		t.Fatalf("position not updated: %+v", got)
	}
	if got.Status != models.DriverStatusActive {
		t.Errorf("position update must not touch status, got %s", got.Status)
	}

	if err := repo.UpdatePosition(ctx, 9999, 0, 0); !models.IsNotFound(err) {
		t.Errorf("unknown driver: want NotFoundError, got %v", err)
	}
}
