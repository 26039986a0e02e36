// Package catalog is the read-only store/product collaborator. The dispatch
// core queries it by id to resolve store coordinates, product prices and
// coupon discounts; it never writes to it.
package catalog

import (
	"strings"

	"delivro/models"
)

// Store is a merchant location orders originate from. DeliveryFee is the
// flat fee used when the customer zone has no base fee of its own.
type Store struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"` // restaurant | grocery | pharmacy | express
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Zone        string    `json:"zone"`
	DeliveryFee int64     `json:"delivery_fee"`
	Products    []Product `json:"products"`
}

// Product is a catalog item with its price in minor-currency units.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Category string `json:"category"`
}

// CouponType distinguishes percentage from fixed-amount discounts.
type CouponType string

const (
	CouponPercent CouponType = "percent"
	CouponFixed   CouponType = "fixed"
)

// Coupon is a discount code. Percent coupons discount the subtotal;
// fixed coupons subtract a flat amount, capped at the order amount.
type Coupon struct {
	Code     string     `json:"code"`
	Discount int64      `json:"discount"`
	Type     CouponType `json:"type"`
}

// Catalog holds the session's store roster and coupon list.
type Catalog struct {
	stores  []Store
	byID    map[string]*Store
	coupons map[string]Coupon
}

// New builds a catalog over the given stores and coupons.
func New(stores []Store, coupons []Coupon) *Catalog {
	c := &Catalog{
		stores:  stores,
		byID:    make(map[string]*Store, len(stores)),
		coupons: make(map[string]Coupon, len(coupons)),
	}
	for i := range c.stores {
		c.byID[c.stores[i].ID] = &c.stores[i]
	}
	for _, cp := range coupons {
		c.coupons[strings.ToUpper(cp.Code)] = cp
	}
	return c
}

// Stores returns the full roster.
func (c *Catalog) Stores() []Store { return c.stores }

// StoreByID resolves a store or fails with NotFoundError.
func (c *Catalog) StoreByID(id string) (*Store, error) {
	s, ok := c.byID[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "store", ID: id}
	}
	return s, nil
}

// ProductByID resolves a product within a store or fails with NotFoundError.
func (c *Catalog) ProductByID(storeID, productID string) (*Product, error) {
	s, err := c.StoreByID(storeID)
	if err != nil {
		return nil, err
	}
	for i := range s.Products {
		if s.Products[i].ID == productID {
			return &s.Products[i], nil
		}
	}
	return nil, &models.NotFoundError{Kind: "product", ID: productID}
}

// CouponByCode resolves a coupon, case-insensitively. ok is false for
// unknown codes.
func (c *Catalog) CouponByCode(code string) (Coupon, bool) {
	cp, ok := c.coupons[strings.ToUpper(strings.TrimSpace(code))]
	return cp, ok
}

// DiscountFor computes the discount a coupon yields against a subtotal and
// fee, capped so the order total never goes negative.
func (cp Coupon) DiscountFor(subtotal, deliveryFee int64) int64 {
	var d int64
	switch cp.Type {
	case CouponPercent:
		d = subtotal * cp.Discount / 100
	case CouponFixed:
		d = cp.Discount
	}
	if max := subtotal + deliveryFee; d > max {
		d = max
	}
	if d < 0 {
		d = 0
	}
	return d
}
