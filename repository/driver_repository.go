package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"delivro/internal/geo"
	"delivro/models"
)

// DriverRepository is the fleet registry. Driver identity is permanent for
// the session; status cycles through ACTIVE/BUSY/OFFLINE.
type DriverRepository struct {
	db *sql.DB
}

// NewDriverRepository creates a new DriverRepository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

const driverColumns = `id, name, phone, vehicle, status, current_order_id, lat, lng, total_distance_km, wallet_balance`

// Create registers a driver. A driver joins OFFLINE or ACTIVE, never BUSY:
// busy is reachable only through dispatch assignment.
func (r *DriverRepository) Create(ctx context.Context, d *models.Driver) (*models.Driver, error) {
	if d == nil {
		return nil, errors.New("driver is nil")
	}
	if d.Status == "" {
		d.Status = models.DriverStatusOffline
	}
	if d.Status != models.DriverStatusOffline && d.Status != models.DriverStatusActive {
		return nil, models.Validationf("driver may only register as ACTIVE or OFFLINE, got %s", d.Status)
	}
	if !models.ValidVehicle(d.Vehicle) {
		return nil, models.Validationf("unknown vehicle %q", d.Vehicle)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO drivers (name, phone, vehicle, status, lat, lng, total_distance_km, wallet_balance) VALUES (?,?,?,?,?,?,?,?)`,
		d.Name, d.Phone, string(d.Vehicle), string(d.Status), d.Lat, d.Lng, d.TotalDistanceKm, d.WalletBalance)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// GetByID fetches a driver. Returns (nil, nil) when missing.
func (r *DriverRepository) GetByID(ctx context.Context, id int64) (*models.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id)
	d, err := scanDriver(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// List returns the whole roster ordered by id.
func (r *DriverRepository) List(ctx context.Context) ([]models.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDrivers(rows)
}

// ListAvailable returns ACTIVE drivers ordered by ascending distance to the
// reference point, ties broken by driver id ascending for determinism.
func (r *DriverRepository) ListAvailable(ctx context.Context, lat, lng float64) ([]models.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE status = ?`, string(models.DriverStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := collectDrivers(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		di := geo.HaversineKm(lat, lng, out[i].Lat, out[i].Lng)
		dj := geo.HaversineKm(lat, lng, out[j].Lat, out[j].Lng)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetStatus sets a driver's availability. ACTIVE and OFFLINE clear
// current_order_id; BUSY requires orderID and records it. Inconsistent
// combinations fail with ValidationError. A BUSY driver is never touched
// here: its release happens inside the dispatch transaction that closes
// the order, so flipping it would strand an order mid-delivery.
func (r *DriverRepository) SetStatus(ctx context.Context, id int64, status models.DriverStatus, orderID *string) error {
	switch status {
	case models.DriverStatusActive, models.DriverStatusOffline:
		if orderID != nil {
			return models.Validationf("status %s does not take an order id", status)
		}
	case models.DriverStatusBusy:
		if orderID == nil || *orderID == "" {
			return models.Validationf("status BUSY requires an order id")
		}
	default:
		return models.Validationf("unknown driver status %q", status)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var res sql.Result
	var err error
	if status == models.DriverStatusBusy {
		res, err = r.db.ExecContext(ctx, `UPDATE drivers SET status = ?, current_order_id = ? WHERE id = ? AND status != ?`,
			string(status), *orderID, id, string(models.DriverStatusBusy))
	} else {
		res, err = r.db.ExecContext(ctx, `UPDATE drivers SET status = ?, current_order_id = NULL WHERE id = ? AND status != ?`,
			string(status), id, string(models.DriverStatusBusy))
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return &models.NotFoundError{Kind: "driver", ID: itoa(id)}
	}
	return models.Conflictf("driver %d is BUSY; the delivery must complete or cancel first", id)
}

// UpdatePosition relocates a driver. No status side effects: position and
// status are logically separate fields updated by different actors.
func (r *DriverRepository) UpdatePosition(ctx context.Context, id int64, lat, lng float64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drivers SET lat = ?, lng = ? WHERE id = ?`, lat, lng, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Kind: "driver", ID: itoa(id)}
	}
	return nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func scanDriver(row rowScanner) (*models.Driver, error) {
	var d models.Driver
	var status, vehicle string
	var cur sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &vehicle, &status, &cur, &d.Lat, &d.Lng, &d.TotalDistanceKm, &d.WalletBalance)
	if err != nil {
		return nil, err
	}
	d.Status = models.DriverStatus(status)
	d.Vehicle = models.Vehicle(vehicle)
	if cur.Valid {
		v := cur.String
		d.CurrentOrderID = &v
	}
	return &d, nil
}

func collectDrivers(rows *sql.Rows) ([]models.Driver, error) {
	var out []models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
