// internal/repository/postgres/payment_settings_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentSettingsRepository struct {
	db *pgxpool.Pool
}

func NewPaymentSettingsRepository(db *pgxpool.Pool) *PaymentSettingsRepository {
	return &PaymentSettingsRepository{db: db}
}

func (r *PaymentSettingsRepository) GetProviderSettings(ctx context.Context, p payment.Provider) (*settings.ProviderSettings, error) {
	query := `
		SELECT provider, enabled, encrypted_secret, public_key, location_id, environment, updated_at
		FROM payment_settings
		WHERE provider = $1
	`

	var s settings.ProviderSettings
	err := r.db.QueryRow(ctx, query, string(p)).Scan(
		&s.Provider, &s.Enabled, &s.EncryptedSecret, &s.PublicKey, &s.LocationID, &s.Environment, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	return &s, nil
}

// Upsert stores s. An empty EncryptedSecret keeps the stored secret.
func (r *PaymentSettingsRepository) Upsert(ctx context.Context, s *settings.ProviderSettings) error {
	query := `
		INSERT INTO payment_settings (provider, enabled, encrypted_secret, public_key, location_id, environment)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    encrypted_secret = CASE WHEN EXCLUDED.encrypted_secret = '' THEN payment_settings.encrypted_secret
		                            ELSE EXCLUDED.encrypted_secret END,
		    public_key = EXCLUDED.public_key,
		    location_id = EXCLUDED.location_id,
		    environment = EXCLUDED.environment,
		    updated_at = NOW()
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		string(s.Provider), s.Enabled, s.EncryptedSecret, s.PublicKey, s.LocationID, string(s.Environment),
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment settings: %w", err)
	}
	return nil
}
