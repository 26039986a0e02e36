package models

// DriverStatus represents the availability of a driver.
type DriverStatus string

const (
	DriverStatusActive  DriverStatus = "ACTIVE"
	DriverStatusBusy    DriverStatus = "BUSY"
	DriverStatusOffline DriverStatus = "OFFLINE"
)

// Vehicle is the driver's mode of transport.
type Vehicle string

const (
	VehicleMotorcycle Vehicle = "motorcycle"
	VehicleCar        Vehicle = "car"
	VehicleBicycle    Vehicle = "bicycle"
)

// ValidVehicle reports whether v is one of the known vehicle kinds.
func ValidVehicle(v Vehicle) bool {
	switch v {
	case VehicleMotorcycle, VehicleCar, VehicleBicycle:
		return true
	}
	return false
}

// Driver represents a fleet driver. CurrentOrderID mirrors the order the
// driver is fulfilling and is present iff Status is BUSY. Position is
// mutated only by the tracking simulation or explicit relocation.
// TotalDistanceKm and WalletBalance are display-only aggregates accumulated
// on delivery.
type Driver struct {
	ID              int64        `db:"id" json:"id"`
	Name            string       `db:"name" json:"name"`
	Phone           string       `db:"phone" json:"phone"`
	Vehicle         Vehicle      `db:"vehicle" json:"vehicle"`
	Status          DriverStatus `db:"status" json:"status"`
	CurrentOrderID  *string      `db:"current_order_id" json:"current_order_id,omitempty"`
	Lat             float64      `db:"lat" json:"lat"`
	Lng             float64      `db:"lng" json:"lng"`
	TotalDistanceKm float64      `db:"total_distance_km" json:"total_distance_km"`
	WalletBalance   int64        `db:"wallet_balance" json:"wallet_balance"`
}
