// internal/repository/postgres/payment_transaction_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type PaymentTransactionRepository struct {
	db *pgxpool.Pool
}

func NewPaymentTransactionRepository(db *pgxpool.Pool) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

const transactionColumns = `
	id, transaction_number, customer_id, employee_id, channel, total_amount, currency,
	status, payment_methods, customer_snapshot, gift_cards, cart, applied_discounts,
	order_ids, refund_of, notes, error_messages, retry_count, processed_at,
	completed_at, archived_at, created_at, updated_at, awaiting_confirmation`

// NextNumber allocates the next "<prefix>-NNNNN" number. The counter row is
// seeded from the highest number already stored, and the upsert serializes
// concurrent callers on the row lock.
func (r *PaymentTransactionRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	query := `
		INSERT INTO payment_counters (prefix, current_value)
		VALUES ($1, COALESCE((
			SELECT MAX(CAST(SUBSTRING(transaction_number FROM LENGTH($1) + 2) AS BIGINT))
			FROM payment_transactions
			WHERE transaction_number LIKE $1 || '-%'
		), $2) + 1)
		ON CONFLICT (prefix) DO UPDATE
		SET current_value = payment_counters.current_value + 1
		RETURNING current_value
	`

	var seq int64
	if err := r.db.QueryRow(ctx, query, prefix, payment.FirstSequenceNumber-1).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to allocate %s number: %w", prefix, err)
	}
	return payment.FormatNumber(prefix, seq), nil
}

// Create inserts a new transaction
func (r *PaymentTransactionRepository) Create(ctx context.Context, t *payment.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, transaction_number, customer_id, employee_id, channel, total_amount, currency,
			status, payment_methods, customer_snapshot, gift_cards, cart, applied_discounts,
			order_ids, refund_of, notes, error_messages, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`

	docs, err := marshalDocs(t)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		ctx, query,
		t.ID, t.TransactionNumber, t.CustomerID, nullString(t.EmployeeID), t.Channel,
		t.TotalAmount.Amount, t.TotalAmount.Currency, t.Status,
		docs.methods, docs.customer, docs.giftCards, docs.cart, docs.discounts,
		pq.StringArray(nonNil(t.OrderIDs)), nullString(t.RefundOf), t.Notes,
		pq.StringArray(nonNil(t.ErrorMessages)), t.ProcessedAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

// SaveResults replaces the recorded tender and gift card results while the
// transaction is still PROCESSING.
func (r *PaymentTransactionRepository) SaveResults(ctx context.Context, id string, methods []payment.PaymentMethodResult, giftCards []payment.GiftCardResult) error {
	methodsJSON, err := json.Marshal(nonNilSlice(methods))
	if err != nil {
		return fmt.Errorf("failed to marshal payment methods: %w", err)
	}
	giftCardsJSON, err := json.Marshal(nonNilSlice(giftCards))
	if err != nil {
		return fmt.Errorf("failed to marshal gift cards: %w", err)
	}

	query := `
		UPDATE payment_transactions
		SET payment_methods = $2, gift_cards = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
	`
	result, err := r.db.Exec(ctx, query, id, methodsJSON, giftCardsJSON)
	if err != nil {
		return fmt.Errorf("failed to save payment results: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s is no longer processing", xerrors.ErrConflict, id)
	}
	return nil
}

// AwaitConfirmation marks a PROCESSING transaction as handed over to provider
// webhooks. Only from then on may ConfirmPayment move it.
func (r *PaymentTransactionRepository) AwaitConfirmation(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET awaiting_confirmation = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction awaiting confirmation: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ConfirmPayment applies a provider verdict to the tender it names. The row is
// locked for the read-modify-write so two verdicts on one transaction apply in
// turn.
func (r *PaymentTransactionRepository) ConfirmPayment(ctx context.Context, id string, c payment.Confirmation) (*payment.PaymentTransaction, payment.ConfirmOutcome, error) {
	var (
		txn     *payment.PaymentTransaction
		outcome payment.ConfirmOutcome
	)

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE id = $1 FOR UPDATE`, transactionColumns)
		t, err := scanTransaction(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment transaction: %w", err)
		}

		txn = t
		outcome = payment.ApplyConfirmation(t, c, time.Now())
		if outcome != payment.ConfirmApplied {
			return nil
		}

		methodsJSON, err := json.Marshal(nonNilSlice(t.PaymentMethods))
		if err != nil {
			return fmt.Errorf("failed to marshal payment methods: %w", err)
		}

		update := `
			UPDATE payment_transactions
			SET status = $2,
			    payment_methods = $3,
			    error_messages = $4,
			    awaiting_confirmation = $5,
			    completed_at = $6,
			    updated_at = NOW()
			WHERE id = $1
		`
		_, err = tx.Exec(ctx, update, t.ID, string(t.Status), methodsJSON,
			pq.StringArray(nonNil(t.ErrorMessages)), t.AwaitingConfirmation, t.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to apply payment confirmation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, payment.ConfirmIgnored, err
	}
	return txn, outcome, nil
}

// TransitionStatus moves a PROCESSING transaction that the checkout still owns
// to status. It reports false when the row was no longer PROCESSING or had been
// handed over to provider confirmation, leaving it untouched.
func (r *PaymentTransactionRepository) TransitionStatus(ctx context.Context, id string, status payment.TransactionStatus, errorMessages []string) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = $2,
		    error_messages = error_messages || $3::text[],
		    completed_at = CASE WHEN $2 = 'COMPLETED' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING' AND NOT awaiting_confirmation
	`

	result, err := r.db.Exec(ctx, query, id, string(status), pq.StringArray(nonNil(errorMessages)))
	if err != nil {
		return false, fmt.Errorf("failed to update transaction status: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// IncrementRetryCount bumps the counter kept for reconciliation attempts
func (r *PaymentTransactionRepository) IncrementRetryCount(ctx context.Context, id string) error {
	query := `UPDATE payment_transactions SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *PaymentTransactionRepository) FindByID(ctx context.Context, id string) (*payment.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE id = $1`, transactionColumns)
	return r.findOne(ctx, query, id)
}

func (r *PaymentTransactionRepository) FindByNumber(ctx context.Context, number string) (*payment.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE transaction_number = $1`, transactionColumns)
	return r.findOne(ctx, query, number)
}

// FindByProviderTransactionID locates the transaction holding a tender with the
// given provider transaction id.
func (r *PaymentTransactionRepository) FindByProviderTransactionID(ctx context.Context, p payment.Provider, providerTxID string) (*payment.PaymentTransaction, error) {
	probe, err := json.Marshal([]map[string]string{{
		"provider":                string(p),
		"provider_transaction_id": providerTxID,
	}})
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE payment_methods @> $1 AND refund_of IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, transactionColumns)
	return r.findOne(ctx, query, probe)
}

// Search lists transactions matching c, newest first, with the total match count.
func (r *PaymentTransactionRepository) Search(ctx context.Context, c payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error) {
	conditions := []string{"archived_at IS NULL"}
	args := []interface{}{}
	argPos := 1

	if c.Number != "" {
		conditions = append(conditions, fmt.Sprintf("transaction_number ILIKE $%d", argPos))
		args = append(args, "%"+c.Number+"%")
		argPos++
	}

	if c.CustomerID != "" {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, c.CustomerID)
		argPos++
	}

	if c.EmployeeID != "" {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", argPos))
		args = append(args, c.EmployeeID)
		argPos++
	}

	if len(c.Statuses) > 0 {
		statuses := make([]string, len(c.Statuses))
		for i, s := range c.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d::text[])", argPos))
		args = append(args, pq.StringArray(statuses))
		argPos++
	}

	if c.Channel != "" {
		conditions = append(conditions, fmt.Sprintf("channel = $%d", argPos))
		args = append(args, c.Channel)
		argPos++
	}

	if c.PaymentMethod != "" {
		probe, _ := json.Marshal([]map[string]string{{"type": string(c.PaymentMethod)}})
		conditions = append(conditions, fmt.Sprintf("payment_methods @> $%d", argPos))
		args = append(args, probe)
		argPos++
	}

	if c.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *c.From)
		argPos++
	}

	if c.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, c.To.AddDate(0, 0, 1))
		argPos++
	}

	if c.MinAmount != nil {
		conditions = append(conditions, fmt.Sprintf("total_amount >= $%d", argPos))
		args = append(args, *c.MinAmount)
		argPos++
	}

	if c.MaxAmount != nil {
		conditions = append(conditions, fmt.Sprintf("total_amount <= $%d", argPos))
		args = append(args, *c.MaxAmount)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payment_transactions WHERE %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := c.Limit
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, transactionColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	txns, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// FindByDateRange returns every non-archived transaction created in [from, to).
func (r *PaymentTransactionRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]*payment.PaymentTransaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE created_at >= $1 AND created_at < $2 AND archived_at IS NULL
		ORDER BY created_at
	`, transactionColumns)
	return r.query(ctx, query, from, to)
}

// FindRefunds returns the refund transactions recorded against originalID.
func (r *PaymentTransactionRepository) FindRefunds(ctx context.Context, originalID string) ([]*payment.PaymentTransaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE refund_of = $1
		ORDER BY created_at
	`, transactionColumns)
	return r.query(ctx, query, originalID)
}

// FindCompletedByOrderIDs returns COMPLETED transactions, sales and refunds,
// linked to any of the given orders.
func (r *PaymentTransactionRepository) FindCompletedByOrderIDs(ctx context.Context, orderIDs []string) ([]*payment.PaymentTransaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE status = 'COMPLETED' AND order_ids && $1::text[]
		ORDER BY created_at
	`, transactionColumns)
	return r.query(ctx, query, pq.StringArray(orderIDs))
}

// DeleteFailedBefore removes FAILED transactions created before cutoff.
func (r *PaymentTransactionRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM payment_transactions t
		WHERE t.status = 'FAILED' AND t.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM payment_transactions r WHERE r.refund_of = t.id)
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete failed transactions: %w", err)
	}
	return result.RowsAffected(), nil
}

// ArchiveCompletedBefore flags COMPLETED transactions created before cutoff.
func (r *PaymentTransactionRepository) ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE payment_transactions
		SET archived_at = NOW(), updated_at = NOW()
		WHERE status = 'COMPLETED' AND created_at < $1 AND archived_at IS NULL
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive transactions: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *PaymentTransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*payment.PaymentTransaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment transaction: %w", err)
	}
	return t, nil
}

func (r *PaymentTransactionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*payment.PaymentTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	defer rows.Close()

	txns := []*payment.PaymentTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanTransaction(row pgx.Row) (*payment.PaymentTransaction, error) {
	var (
		t                                        payment.PaymentTransaction
		employeeID, refundOf                     *string
		amount                                   int64
		currency                                 string
		methodsJSON, customerJSON, giftCardsJSON []byte
		cartJSON, discountsJSON                  []byte
		orderIDs, errorMessages                  []string
	)

	err := row.Scan(
		&t.ID, &t.TransactionNumber, &t.CustomerID, &employeeID, &t.Channel, &amount, &currency,
		&t.Status, &methodsJSON, &customerJSON, &giftCardsJSON, &cartJSON, &discountsJSON,
		&orderIDs, &refundOf, &t.Notes, &errorMessages, &t.RetryCount, &t.ProcessedAt,
		&t.CompletedAt, &t.ArchivedAt, &t.CreatedAt, &t.UpdatedAt, &t.AwaitingConfirmation,
	)
	if err != nil {
		return nil, err
	}

	t.TotalAmount = money.New(amount, currency)
	t.OrderIDs = orderIDs
	t.ErrorMessages = errorMessages
	if employeeID != nil {
		t.EmployeeID = *employeeID
	}
	if refundOf != nil {
		t.RefundOf = *refundOf
	}

	docs := []struct {
		raw  []byte
		into interface{}
	}{
		{methodsJSON, &t.PaymentMethods},
		{customerJSON, &t.Customer},
		{giftCardsJSON, &t.GiftCards},
		{cartJSON, &t.Cart},
		{discountsJSON, &t.AppliedDiscounts},
	}
	for _, d := range docs {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.into); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction document: %w", err)
		}
	}
	return &t, nil
}

type transactionDocs struct {
	methods, customer, giftCards, cart, discounts []byte
}

func marshalDocs(t *payment.PaymentTransaction) (transactionDocs, error) {
	var (
		d   transactionDocs
		err error
	)
	if d.methods, err = json.Marshal(nonNilSlice(t.PaymentMethods)); err != nil {
		return d, fmt.Errorf("failed to marshal payment methods: %w", err)
	}
	if d.customer, err = json.Marshal(t.Customer); err != nil {
		return d, fmt.Errorf("failed to marshal customer snapshot: %w", err)
	}
	if d.giftCards, err = json.Marshal(nonNilSlice(t.GiftCards)); err != nil {
		return d, fmt.Errorf("failed to marshal gift cards: %w", err)
	}
	if d.cart, err = json.Marshal(t.Cart); err != nil {
		return d, fmt.Errorf("failed to marshal cart: %w", err)
	}
	if d.discounts, err = json.Marshal(nonNilSlice(t.AppliedDiscounts)); err != nil {
		return d, fmt.Errorf("failed to marshal discounts: %w", err)
	}
	return d, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNil(s []string) []string {
	return nonNilSlice(s)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
