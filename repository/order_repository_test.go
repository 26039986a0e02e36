package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"delivro/internal/testutil"
	"delivro/models"
)

func newTestOrder() *models.Order {
	return &models.Order{
		StoreID:     "s1",
		Phone:       "777123456",
		Subtotal:    3200,
		DeliveryFee: 500,
		Discount:    0,
		Location: models.Location{
			Lat:     15.3547,
			Lng:     44.2066,
			Address: "Hadda Street, building 12",
			Zone:    "hadda",
		},
		PaymentMethod: models.PaymentCash,
		Items: []models.OrderItem{
			{ProductID: "p2", Name: "Mandi", UnitPrice: 3200, Quantity: 1},
		},
	}
}

func TestOrderCreateAndGet(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "ordercreate")
	repo := NewOrderRepository(d)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ord, err := repo.Create(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if ord.ID == "" || len(ord.ID) != 10 || ord.ID[:4] != "DLV-" {
		t.Errorf("unexpected order id: %q", ord.ID)
	}
	if ord.Status != models.OrderStatusPreparing {
		t.Errorf("new order status = %s, want PREPARING", ord.Status)
	}
	if ord.Total != 3700 {
		t.Errorf("total = %d, want 3700", ord.Total)
	}
	if ord.PlacedAt == "" {
		t.Errorf("placed_at not stamped")
	}
	if ord.DriverID != nil {
		t.Errorf("new order must have no driver")
	}

	got, err := repo.GetByID(ctx, ord.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got == nil || len(got.Items) != 1 || got.Items[0].Name != "Mandi" {
		t.Fatalf("items not round-tripped: %+v", got)
	}

	missing, err := repo.GetByID(ctx, "DLV-ZZZZZZ")
	if err != nil || missing != nil {
		t.Fatalf("missing order should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestOrderCreateValidation(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "ordervalidate")
	repo := NewOrderRepository(d)
	ctx := context.Background()

	empty := newTestOrder()
	empty.Items = nil
	if _, err := repo.Create(ctx, empty); !models.IsValidation(err) {
		t.Errorf("empty cart: want ValidationError, got %v", err)
	}

	badQty := newTestOrder()
	badQty.Items[0].Quantity = 0
	if _, err := repo.Create(ctx, badQty); !models.IsValidation(err) {
		t.Errorf("zero quantity: want ValidationError, got %v", err)
	}

	noLoc := newTestOrder()
	noLoc.Location = models.Location{}
	if _, err := repo.Create(ctx, noLoc); !models.IsValidation(err) {
		t.Errorf("missing location: want ValidationError, got %v", err)
	}

	overDiscount := newTestOrder()
	overDiscount.Discount = 10000
	if _, err := repo.Create(ctx, overDiscount); !models.IsValidation(err) {
		t.Errorf("discount beyond total: want ValidationError, got %v", err)
	}
}

func TestTransitionStatus(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "ordertransition")
	repo := NewOrderRepository(d)
	ctx := context.Background()

	ord, err := repo.Create(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// PREPARING cannot jump straight to DELIVERED.
	if _, err := repo.TransitionStatus(ctx, ord.ID, models.OrderStatusDelivered); !models.IsInvalidTransition(err) {
		t.Errorf("PREPARING->DELIVERED: want InvalidTransitionError, got %v", err)
	}

	out, err := repo.TransitionStatus(ctx, ord.ID, models.OrderStatusOutForDelivery)
	if err != nil {
		t.Fatalf("PREPARING->OUT_FOR_DELIVERY: %v", err)
	}
	if out.Status != models.OrderStatusOutForDelivery {
		t.Fatalf("status = %s", out.Status)
	}

	done, err := repo.TransitionStatus(ctx, ord.ID, models.OrderStatusDelivered)
	if err != nil {
		t.Fatalf("OUT_FOR_DELIVERY->DELIVERED: %v", err)
	}
	if done.Status != models.OrderStatusDelivered {
		t.Fatalf("status = %s", done.Status)
	}

	// Terminal states reject everything.
	if _, err := repo.TransitionStatus(ctx, ord.ID, models.OrderStatusCancelled); !models.IsInvalidTransition(err) {
		t.Errorf("DELIVERED->CANCELLED: want InvalidTransitionError, got %v", err)
	}

	if _, err := repo.TransitionStatus(ctx, "DLV-ZZZZZZ", models.OrderStatusCancelled); !models.IsNotFound(err) {
		t.Errorf("unknown order: want NotFoundError, got %v", err)
	}
}

// Two racing transitions out of OUT_FOR_DELIVERY must resolve to exactly
// one winner; the loser observes the new status and fails the state check.
func TestTransitionStatusConcurrent(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "orderrace")
	// Shared-cache SQLite returns SQLITE_LOCKED across connections; one
	// pooled connection keeps the race at the application level.
	d.SetMaxOpenConns(1)
	repo := NewOrderRepository(d)
	ctx := context.Background()

	ord, err := repo.Create(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := repo.TransitionStatus(ctx, ord.ID, models.OrderStatusOutForDelivery); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	targets := []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusCancelled}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to models.OrderStatus) {
			defer wg.Done()
			_, errs[i] = repo.TransitionStatus(ctx, ord.ID, to)
		}(i, to)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
		} else if !models.IsInvalidTransition(err) {
			t.Errorf("transition to %s: unexpected error %v", targets[i], err)
		}
	}
	if wins != 1 {
		t.Fatalf("want exactly one winning transition, got %d", wins)
	}

	final, err := repo.GetByID(ctx, ord.ID)
	if err != nil || final == nil {
		t.Fatalf("get final order: %v", err)
	}
	if !models.Terminal(final.Status) {
		t.Fatalf("final status %s is not terminal", final.Status)
	}
}

func TestListByPhoneOrdering(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "orderlist")
	repo := NewOrderRepository(d)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, newTestOrder()); err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
	}
	other := newTestOrder()
	other.Phone = "777999888"
	if _, err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create other order: %v", err)
	}

	mine, err := repo.ListByPhone(ctx, "777123456")
	if err != nil {
		t.Fatalf("list by phone: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("len = %d, want 3", len(mine))
	}
	for _, o := range mine {
		if o.Phone != "777123456" {
			t.Errorf("foreign order %s in listing", o.ID)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
}

func TestListAdminFiltersAndPaging(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "orderadmin")
	repo := NewOrderRepository(d)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ord, err := repo.Create(ctx, newTestOrder())
		if err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
		ids = append(ids, ord.ID)
	}
	if _, err := repo.TransitionStatus(ctx, ids[0], models.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancelled, err := repo.ListAdmin(ctx, ListOrdersAdminParams{Statuses: []models.OrderStatus{models.OrderStatusCancelled}})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != ids[0] {
		t.Fatalf("cancelled filter: %+v", cancelled)
	}

	page, err := repo.ListAdmin(ctx, ListOrdersAdminParams{PageSize: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page len = %d, want 2", len(page))
	}

	// Walk the keyset cursor until the listing is exhausted.
	seen := map[string]bool{}
	params := ListOrdersAdminParams{PageSize: 2}
	for {
		batch, err := repo.ListAdmin(ctx, params)
		if err != nil {
			t.Fatalf("paged list: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, o := range batch {
			if seen[o.ID] {
				t.Fatalf("order %s returned twice", o.ID)
			}
			seen[o.ID] = true
		}
		last := batch[len(batch)-1]
		sec, err := placedAtSeconds(last.PlacedAt)
		if err != nil {
			t.Fatalf("parse placed_at %q: %v", last.PlacedAt, err)
		}
		params.AfterSeconds = sec
		params.AfterID = last.ID
	}
	if len(seen) != 5 {
		t.Fatalf("paged walk saw %d orders, want 5", len(seen))
	}
}

func placedAtSeconds(placedAt string) (int64, error) {
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", placedAt)
	if err != nil {
		return 0, err
	}
	return ts.Unix(), nil
}
