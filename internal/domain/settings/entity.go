// internal/domain/settings/entity.go
package settings

import (
	"time"

	"bloom-payments/internal/domain/payment"
)

type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// ProviderSettings is the stored configuration of one provider. The secret is
// encrypted at rest and only decrypted by the client factory.
type ProviderSettings struct {
	Provider        payment.Provider `json:"provider" db:"provider"`
	Enabled         bool             `json:"enabled" db:"enabled"`
	EncryptedSecret string           `json:"-" db:"encrypted_secret"`
	PublicKey       string           `json:"public_key,omitempty" db:"public_key"`
	LocationID      string           `json:"location_id,omitempty" db:"location_id"`
	Environment     Environment      `json:"environment" db:"environment"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

func (s *ProviderSettings) HasSecret() bool {
	return s != nil && s.EncryptedSecret != ""
}

func (s *ProviderSettings) IsSandbox() bool {
	return s == nil || s.Environment != EnvProduction
}

// UpdateProviderSettingsInput is what the settings surface submits. An empty
// Secret keeps the stored one.
type UpdateProviderSettingsInput struct {
	Enabled     bool        `json:"enabled"`
	Secret      string      `json:"secret,omitempty"`
	PublicKey   string      `json:"public_key,omitempty"`
	LocationID  string      `json:"location_id,omitempty"`
	Environment Environment `json:"environment" binding:"omitempty,oneof=sandbox production"`
}
