package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field limits for microgrant applications.
const (
	MaxBusinessNameLength = 200
	MaxDescriptionLength  = 2000
)

// MicrograntStatus tracks a grant application through review.
type MicrograntStatus string

// Microgrant statuses. New applications start Pending.
const (
	MicrograntStatusPending  MicrograntStatus = "pending"
	MicrograntStatusApproved MicrograntStatus = "approved"
	MicrograntStatusFunded   MicrograntStatus = "funded"
	MicrograntStatusRejected MicrograntStatus = "rejected"
)

// IsValid reports whether s is a known status.
func (s MicrograntStatus) IsValid() bool {
	switch s {
	case MicrograntStatusPending, MicrograntStatusApproved, MicrograntStatusFunded, MicrograntStatusRejected:
		return true
	}
	return false
}

// Microgrant is a small business funding request listed on the marketplace.
// OwnerName is read-only and filled in by stores from the owner's account.
type Microgrant struct {
	ID              uuid.UUID        `json:"id"`
	OwnerID         uuid.UUID        `json:"owner_id"`
	OwnerName       string           `json:"owner_name,omitempty"`
	BusinessName    string           `json:"business_name"`
	Description     string           `json:"description"`
	AmountRequested decimal.Decimal  `json:"amount_requested"`
	Status          MicrograntStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewMicrogrant creates a Pending application owned by owner.
func NewMicrogrant(
	owner uuid.UUID,
	businessName, description string,
	amountRequested decimal.Decimal,
	now time.Time,
) (*Microgrant, error) {
	now = now.UTC()
	g := &Microgrant{
		ID:              uuid.New(),
		OwnerID:         owner,
		BusinessName:    strings.TrimSpace(businessName),
		Description:     strings.TrimSpace(description),
		AmountRequested: amountRequested,
		Status:          MicrograntStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the grant's invariants.
func (g *Microgrant) Validate() error {
	if g.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if g.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", "cannot be empty", ErrInvalidID)
	}
	if g.BusinessName == "" {
		return NewValidationError("business_name", "cannot be empty", nil)
	}
	if utf8.RuneCountInString(g.BusinessName) > MaxBusinessNameLength {
		return NewValidationError("business_name", "is too long", nil)
	}
	if utf8.RuneCountInString(g.Description) > MaxDescriptionLength {
		return NewValidationError("description", "is too long", nil)
	}
	if !g.AmountRequested.IsPositive() {
		return NewValidationError("amount_requested", "must be positive", ErrInvalidAmount)
	}
	if !g.Status.IsValid() {
		return NewValidationError("status", "is unknown", nil)
	}
	return nil
}
