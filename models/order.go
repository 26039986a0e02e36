package models

import (
	"crypto/rand"
	"fmt"
)

// OrderStatus represents the current progress of an order.
type OrderStatus string

const (
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
)

// allowedTransitions defines the order status flow as code. DELIVERED and
// CANCELLED are terminal: no transition leaves them.
var allowedTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusPreparing: {
		OrderStatusOutForDelivery: {},
		OrderStatusCancelled:      {},
	},
	OrderStatusOutForDelivery: {
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	},
}

// CanTransition reports whether an order status move is legal.
func CanTransition(from, to OrderStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s OrderStatus) bool {
	return len(allowedTransitions[s]) == 0
}

// Location is a delivery destination: coordinate plus free-text address.
// Zone names a fee zone when the address falls inside a known neighborhood;
// it is empty otherwise.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
	Zone    string  `json:"zone,omitempty"`
	Note    string  `json:"note,omitempty"`
}

// OrderItem is a single cart line. Quantity is at least 1.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
	Note      string `db:"note" json:"note,omitempty"`
}

// Order represents a delivery order. Monetary fields are minor-currency
// units; Total = Subtotal + DeliveryFee - Discount is computed once at
// creation and never recomputed. DriverID is set and cleared only by the
// dispatch controller.
type Order struct {
	ID            string        `db:"id" json:"id"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `db:"subtotal" json:"subtotal"`
	DeliveryFee   int64         `db:"delivery_fee" json:"delivery_fee"`
	Discount      int64         `db:"discount" json:"discount"`
	Total         int64         `db:"total" json:"total"`
	Status        OrderStatus   `db:"status" json:"status"`
	PlacedAt      string        `db:"placed_at" json:"placed_at"`
	Location      Location      `json:"customer_location"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	Phone         string        `db:"phone" json:"phone"`
	StoreID       string        `db:"store_id" json:"store_id"`
	DriverID      *int64        `db:"driver_id" json:"driver_id,omitempty"`
}

const orderIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderID generates an order id in the DLV-XXXXXX form shown on the
// tracking and dispatch surfaces.
func NewOrderID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("order id entropy: %v", err))
	}
	for i, b := range buf {
		buf[i] = orderIDAlphabet[int(b)%len(orderIDAlphabet)]
	}
	return "DLV-" + string(buf[:])
}
