// internal/domain/customer/entity.go
package customer

import (
	"database/sql"
	"strings"
	"time"

	"bloom-payments/internal/domain/payment"

	"github.com/lib/pq"
)

type CustomerType string

const (
	TypeRegistered CustomerType = "REGISTERED"
	TypeWalkIn     CustomerType = "WALK_IN"
)

// Guest customers get a fixed display name.
const (
	GuestFirstName = "Walk-in"
	GuestLastName  = "Customer"
)

type Customer struct {
	ID        string         `json:"id" db:"id"`
	FirstName string         `json:"first_name" db:"first_name"`
	LastName  string         `json:"last_name" db:"last_name"`
	Email     sql.NullString `json:"email,omitempty" db:"email"`
	Phone     sql.NullString `json:"phone,omitempty" db:"phone"`
	Type      CustomerType   `json:"customer_type" db:"customer_type"`
	Tags      pq.StringArray `json:"tags,omitempty" db:"tags"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Snapshot denormalizes the customer onto a transaction.
func (c *Customer) Snapshot() payment.CustomerSnapshot {
	return payment.CustomerSnapshot{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email.String,
		Phone:     c.Phone.String,
	}
}

func (c *Customer) Contact() ContactInfo {
	return ContactInfo{
		Name:  c.FullName(),
		Email: c.Email.String,
		Phone: c.Phone.String,
	}
}

// ContactInfo is what a provider needs to create its own customer object.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c ContactInfo) IsEmpty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == ""
}

// ProviderCustomerLink maps a local customer to one provider-side customer id.
// At most one link per (customer, provider) is primary and active.
type ProviderCustomerLink struct {
	ID                 string            `json:"id" db:"id"`
	CustomerID         string            `json:"customer_id" db:"customer_id"`
	Provider           payment.Provider  `json:"provider" db:"provider"`
	ProviderCustomerID string            `json:"provider_customer_id" db:"provider_customer_id"`
	ProviderEmail      sql.NullString    `json:"provider_email,omitempty" db:"provider_email"`
	IsPrimary          bool              `json:"is_primary" db:"is_primary"`
	IsActive           bool              `json:"is_active" db:"is_active"`
	Metadata           map[string]string `json:"metadata,omitempty" db:"metadata"`
	LastSyncAt         sql.NullTime      `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// SavedCard is a provider-side card attached to a provider customer.
type SavedCard struct {
	ID                 string           `json:"id"`
	Provider           payment.Provider `json:"provider"`
	ProviderCustomerID string           `json:"provider_customer_id"`
	Brand              string           `json:"brand"`
	Last4              string           `json:"last4"`
	ExpMonth           int64            `json:"exp_month"`
	ExpYear            int64            `json:"exp_year"`
	Fingerprint        string           `json:"fingerprint,omitempty"`
}

// DedupKey identifies the physical card; falls back to the provider id.
func (c SavedCard) DedupKey() string {
	if c.Fingerprint != "" {
		return c.Fingerprint
	}
	return c.ID
}
