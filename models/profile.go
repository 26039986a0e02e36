package models

// Profile represents the placing customer's account. Orders may only be
// created for a profile with IsVerified set; verification is flipped by the
// phone-verification collaborator. Wallet is a minor-currency balance used
// by the wallet payment method.
type Profile struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone"`
	IsVerified bool   `db:"is_verified" json:"is_verified"`
	Wallet     int64  `db:"wallet" json:"wallet"`
}
