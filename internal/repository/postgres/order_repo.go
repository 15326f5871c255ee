// internal/repository/postgres/order_repo.go
package postgres

import (
	"context"
	"fmt"

	"bloom-payments/internal/domain/order"
	"bloom-payments/internal/pkg/money"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// MarkPaidIfDraft moves DRAFT orders to PAID and returns the ids it changed.
// Orders in any other status are left alone.
func (r *OrderRepository) MarkPaidIfDraft(ctx context.Context, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	query := `
		UPDATE orders
		SET status = 'PAID', updated_at = NOW()
		WHERE id = ANY($1::text[]) AND status = 'DRAFT'
		RETURNING id
	`
	rows, err := r.db.Query(ctx, query, pq.StringArray(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to mark orders paid: %w", err)
	}
	defer rows.Close()

	updated := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		updated = append(updated, id)
	}
	return updated, rows.Err()
}

// FindTotals returns each order's total keyed by id.
func (r *OrderRepository) FindTotals(ctx context.Context, orderIDs []string) (map[string]money.Money, error) {
	query := `SELECT id, total_amount, currency FROM orders WHERE id = ANY($1::text[])`
	rows, err := r.db.Query(ctx, query, pq.StringArray(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load order totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]money.Money, len(orderIDs))
	for rows.Next() {
		var id, currency string
		var amount int64
		if err := rows.Scan(&id, &amount, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan order total: %w", err)
		}
		totals[id] = money.New(amount, currency)
	}
	return totals, rows.Err()
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error {
	query := `UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, orderID, string(status)); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}
	return nil
}
