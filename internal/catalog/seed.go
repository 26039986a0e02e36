package catalog

// Seed returns the built-in session catalog: the Sana'a store roster and
// active coupon codes.
func Seed() *Catalog {
	return New(seedStores(), seedCoupons())
}

func seedStores() []Store {
	return []Store{
		{
			ID: "s1", Name: "Al-Shaibani Modern", Type: "restaurant",
			Lat: 15.3484, Lng: 44.1790, Zone: "hadda", DeliveryFee: 500,
			Products: []Product{
				{ID: "p1", Name: "Yemeni Saltah", Price: 1800, Category: "Main"},
				{ID: "p2", Name: "Mandi Chicken", Price: 3200, Category: "Main"},
				{ID: "p3", Name: "Fahsa", Price: 2500, Category: "Main"},
			},
		},
		{
			ID: "s2", Name: "Sana'a Express Grocery", Type: "grocery",
			Lat: 15.3620, Lng: 44.2050, Zone: "sabeen", DeliveryFee: 400,
			Products: []Product{
				{ID: "p4", Name: "Sana'ani Honey", Price: 15000, Category: "Main"},
				{ID: "p5", Name: "Mineral Water 12x", Price: 1200, Category: "Drinks"},
			},
		},
		{
			ID: "s3", Name: "Al-Tahrir Pharmacy", Type: "pharmacy",
			Lat: 15.3547, Lng: 44.2066, Zone: "tahrir", DeliveryFee: 400,
			Products: []Product{
				{ID: "p6", Name: "First Aid Kit", Price: 4500, Category: "Health"},
				{ID: "p7", Name: "Vitamin C", Price: 1500, Category: "Health"},
			},
		},
	}
}

func seedCoupons() []Coupon {
	return []Coupon{
		{Code: "SANA10", Discount: 10, Type: CouponPercent},
		{Code: "DELIVERY500", Discount: 500, Type: CouponFixed},
	}
}
