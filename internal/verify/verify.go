// Package verify implements the phone-verification collaborator: it
// generates one-time codes and checks them, flipping the profile's verified
// flag on success. How the code reaches the customer is the transport's
// business, not this package's; the challenge carries the composed message
// text for the transport to deliver.
package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivro/models"
	"delivro/repository"
)

const (
	defaultTTL      = 5 * time.Minute
	defaultCooldown = 60 * time.Second
	minPhoneDigits  = 9
)

// Challenge is an issued verification code. Code appears both as a field
// and inside the composed Message the transport delivers.
type Challenge struct {
	CodeID    string
	Phone     string
	Code      string
	Message   string
	ExpiresAt time.Time
}

type pending struct {
	phone  string
	code   string
	issued time.Time
}

// Service issues and confirms verification codes. Codes are single-use,
// expire after the TTL, and a phone may not request a new code during the
// resend cooldown.
type Service struct {
	profiles repository.ProfileRepositoryI
	ttl      time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	codes   map[string]*pending // by code id
	byPhone map[string]string   // phone -> latest code id
}

// NewService creates a verification service over the profile store.
func NewService(profiles repository.ProfileRepositoryI) *Service {
	return &Service{
		profiles: profiles,
		ttl:      defaultTTL,
		cooldown: defaultCooldown,
		now:      time.Now,
		codes:    make(map[string]*pending),
		byPhone:  make(map[string]string),
	}
}

// RequestCode issues a 6-digit code for a phone. A new request invalidates
// the phone's previous code. Fails with ValidationError for malformed
// phones and ConflictError while the resend cooldown runs.
func (s *Service) RequestCode(phone string) (*Challenge, error) {
	if len(phone) < minPhoneDigits {
		return nil, models.Validationf("phone must have at least %d digits", minPhoneDigits)
	}
	code, err := sixDigits()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prevID, ok := s.byPhone[phone]; ok {
		if prev, ok := s.codes[prevID]; ok {
			if now.Sub(prev.issued) < s.cooldown {
				return nil, models.Conflictf("a code was already sent; retry after %s", s.cooldown)
			}
			delete(s.codes, prevID)
		}
	}

	id := uuid.NewString()
	s.codes[id] = &pending{phone: phone, code: code, issued: now}
	s.byPhone[phone] = id
	return &Challenge{
		CodeID:    id,
		Phone:     phone,
		Code:      code,
		Message:   fmt.Sprintf("Welcome to Delivro! Your verification code is: [ %s ] . Please enter it in the app to complete your order.", code),
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// ConfirmCode checks a code against a challenge. On match it consumes the
// challenge and marks the phone's profile verified. Expired, consumed or
// mismatched codes return false; unknown challenge ids return false as
// well, so callers cannot probe for valid ids.
func (s *Service) ConfirmCode(ctx context.Context, codeID, input string) (bool, error) {
	s.mu.Lock()
	p, ok := s.codes[codeID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if s.now().Sub(p.issued) > s.ttl {
		delete(s.codes, codeID)
		delete(s.byPhone, p.phone)
		s.mu.Unlock()
		return false, nil
	}
	match := subtle.ConstantTimeCompare([]byte(p.code), []byte(input)) == 1
	if match {
		delete(s.codes, codeID)
		delete(s.byPhone, p.phone)
	}
	s.mu.Unlock()

	if !match {
		return false, nil
	}
	if err := s.profiles.SetVerified(ctx, p.phone, true); err != nil {
		return false, err
	}
	return true, nil
}

func sixDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
