// internal/repository/postgres/provider_customer_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProviderCustomerRepository struct {
	db *pgxpool.Pool
}

func NewProviderCustomerRepository(db *pgxpool.Pool) *ProviderCustomerRepository {
	return &ProviderCustomerRepository{db: db}
}

const providerCustomerColumns = `
	id, customer_id, provider, provider_customer_id, provider_email, is_primary,
	is_active, metadata, last_sync_at, created_at, updated_at`

// FindPrimary returns the primary active link, falling back to the oldest active one.
func (r *ProviderCustomerRepository) FindPrimary(ctx context.Context, customerID string, p payment.Provider) (*customer.ProviderCustomerLink, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provider_customers
		WHERE customer_id = $1 AND provider = $2 AND is_active
		ORDER BY is_primary DESC, created_at ASC
		LIMIT 1
	`, providerCustomerColumns)

	link, err := scanProviderCustomer(r.db.QueryRow(ctx, query, customerID, string(p)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find provider customer: %w", err)
	}
	return link, nil
}

// FindActive lists active links, primary first then oldest first.
func (r *ProviderCustomerRepository) FindActive(ctx context.Context, customerID string, p payment.Provider) ([]*customer.ProviderCustomerLink, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provider_customers
		WHERE customer_id = $1 AND provider = $2 AND is_active
		ORDER BY is_primary DESC, created_at ASC
	`, providerCustomerColumns)

	rows, err := r.db.Query(ctx, query, customerID, string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to list provider customers: %w", err)
	}
	defer rows.Close()

	links := []*customer.ProviderCustomerLink{}
	for rows.Next() {
		link, err := scanProviderCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider customer: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// CreatePrimary demotes any existing primary and inserts link as the new one
func (r *ProviderCustomerRepository) CreatePrimary(ctx context.Context, link *customer.ProviderCustomerLink) error {
	var metadataJSON []byte
	if link.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(link.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE provider_customers SET is_primary = FALSE, updated_at = NOW()
			WHERE customer_id = $1 AND provider = $2 AND is_primary
		`, link.CustomerID, string(link.Provider))
		if err != nil {
			return fmt.Errorf("failed to demote primary provider customer: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO provider_customers (
				id, customer_id, provider, provider_customer_id, provider_email,
				is_primary, is_active, metadata, last_sync_at
			) VALUES ($1, $2, $3, $4, $5, TRUE, TRUE, $6, NOW())
			RETURNING created_at, updated_at
		`,
			link.ID, link.CustomerID, string(link.Provider), link.ProviderCustomerID, link.ProviderEmail, metadataJSON,
		).Scan(&link.CreatedAt, &link.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create provider customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	link.IsPrimary, link.IsActive = true, true
	return nil
}

// UpdateProviderCustomerID repoints an existing link at a recreated remote customer
func (r *ProviderCustomerRepository) UpdateProviderCustomerID(ctx context.Context, linkID, providerCustomerID string) error {
	query := `
		UPDATE provider_customers
		SET provider_customer_id = $2, last_sync_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, linkID, providerCustomerID)
	if err != nil {
		return fmt.Errorf("failed to update provider customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ProviderCustomerRepository) Deactivate(ctx context.Context, linkID string) error {
	query := `
		UPDATE provider_customers
		SET is_active = FALSE, is_primary = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, linkID)
	if err != nil {
		return fmt.Errorf("failed to deactivate provider customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func scanProviderCustomer(row pgx.Row) (*customer.ProviderCustomerLink, error) {
	var link customer.ProviderCustomerLink
	var metadataJSON []byte

	err := row.Scan(
		&link.ID, &link.CustomerID, &link.Provider, &link.ProviderCustomerID, &link.ProviderEmail, &link.IsPrimary,
		&link.IsActive, &metadataJSON, &link.LastSyncAt, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &link.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &link, nil
}
