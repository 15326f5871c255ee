// internal/repository/postgres/customer_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// FindByID retrieves a customer by ID
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, customer_type, tags, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	c, err := scanCustomer(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	return c, nil
}

// CreateGuest creates a walk-in customer record for an anonymous checkout
func (r *CustomerRepository) CreateGuest(ctx context.Context) (*customer.Customer, error) {
	c := &customer.Customer{
		ID:        ulid.Make().String(),
		FirstName: customer.GuestFirstName,
		LastName:  customer.GuestLastName,
		Type:      customer.TypeWalkIn,
		Tags:      pq.StringArray{"guest"},
	}
	if err := r.insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateFromData creates a customer from checkout contact fields. An existing
// customer with the same email is reused.
func (r *CustomerRepository) CreateFromData(ctx context.Context, data payment.CustomerData) (*customer.Customer, error) {
	email := strings.TrimSpace(data.Email)
	if email != "" {
		existing, err := r.findByEmail(ctx, email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	c := &customer.Customer{
		ID:        ulid.Make().String(),
		FirstName: strings.TrimSpace(data.FirstName),
		LastName:  strings.TrimSpace(data.LastName),
		Email:     sql.NullString{String: email, Valid: email != ""},
		Phone:     sql.NullString{String: strings.TrimSpace(data.Phone), Valid: strings.TrimSpace(data.Phone) != ""},
		Type:      customer.TypeRegistered,
		Tags:      pq.StringArray{},
	}
	if c.FirstName == "" && c.LastName == "" {
		c.FirstName, c.LastName = customer.GuestFirstName, customer.GuestLastName
	}
	if err := r.insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CustomerRepository) findByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	query := `
		SELECT id, first_name, last_name, email, phone, customer_type, tags, created_at, updated_at
		FROM customers
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at
		LIMIT 1
	`

	c, err := scanCustomer(r.db.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer by email: %w", err)
	}
	return c, nil
}

func (r *CustomerRepository) insert(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (id, first_name, last_name, email, phone, customer_type, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Type, c.Tags,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var c customer.Customer
	var tags []string
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Type, &tags, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// text[] arrives in binary form, which pq.StringArray cannot parse
	c.Tags = pq.StringArray(tags)
	return &c, nil
}
