package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"delivro/models"
)

// ProfileRepository stores customer profiles keyed by phone number.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert creates the profile for a phone number or updates its name and
// wallet if one exists. Verification state is preserved on update.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	if p == nil {
		return nil, errors.New("profile is nil")
	}
	if p.Phone == "" {
		return nil, models.Validationf("phone is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO profiles (name, phone, is_verified, wallet) VALUES (?,?,?,?)
ON CONFLICT(phone) DO UPDATE SET name = excluded.name, wallet = excluded.wallet`,
		p.Name, p.Phone, boolToInt(p.IsVerified), p.Wallet)
	if err != nil {
		return nil, err
	}
	return r.GetByPhone(ctx, p.Phone)
}

// GetByPhone fetches a profile. Returns (nil, nil) when missing.
func (r *ProfileRepository) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var p models.Profile
	var verified int
	err := r.db.QueryRowContext(ctx, `SELECT id, name, phone, is_verified, wallet FROM profiles WHERE phone = ?`, phone).
		Scan(&p.ID, &p.Name, &p.Phone, &verified, &p.Wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.IsVerified = verified != 0
	return &p, nil
}

// SetVerified flips the verification flag for a phone, creating the profile
// if the phone has never been seen.
func (r *ProfileRepository) SetVerified(ctx context.Context, phone string, verified bool) error {
	if phone == "" {
		return models.Validationf("phone is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO profiles (phone, is_verified) VALUES (?,?)
ON CONFLICT(phone) DO UPDATE SET is_verified = excluded.is_verified`,
		phone, boolToInt(verified))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
