// internal/repository/postgres/gift_card_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/giftcard"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

type GiftCardRepository struct {
	db *pgxpool.Pool
}

func NewGiftCardRepository(db *pgxpool.Pool) *GiftCardRepository {
	return &GiftCardRepository{db: db}
}

// Create stores a newly activated card
func (r *GiftCardRepository) Create(ctx context.Context, c *giftcard.GiftCard) error {
	query := `
		INSERT INTO gift_cards (
			id, card_number, activation_code, kind, initial_balance, balance, currency, status,
			purchased_by_customer_id, recipient_name, recipient_email, message, transaction_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		c.ID, c.CardNumber, c.ActivationCode, c.Kind, c.InitialBalance.Amount, c.Balance.Amount, c.Balance.Currency, c.Status,
		c.PurchasedByCustomerID, c.RecipientName, c.RecipientEmail, c.Message, c.TransactionID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("gift card %s: %w", c.CardNumber, xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create gift card: %w", err)
	}
	return nil
}

func (r *GiftCardRepository) FindByNumber(ctx context.Context, cardNumber string) (*giftcard.GiftCard, error) {
	query := `
		SELECT id, card_number, activation_code, kind, initial_balance, balance, currency, status,
		       purchased_by_customer_id, recipient_name, recipient_email, message, transaction_id,
		       created_at, updated_at
		FROM gift_cards
		WHERE card_number = $1
	`

	var c giftcard.GiftCard
	var initial, balance int64
	var currency string

	err := r.db.QueryRow(ctx, query, cardNumber).Scan(
		&c.ID, &c.CardNumber, &c.ActivationCode, &c.Kind, &initial, &balance, &currency, &c.Status,
		&c.PurchasedByCustomerID, &c.RecipientName, &c.RecipientEmail, &c.Message, &c.TransactionID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find gift card: %w", err)
	}

	c.InitialBalance = money.New(initial, currency)
	c.Balance = money.New(balance, currency)
	return &c, nil
}

// Debit takes amount off an active card in one conditional update, so two
// concurrent redemptions can never overdraw it.
func (r *GiftCardRepository) Debit(ctx context.Context, cardNumber string, amount money.Money, transactionID string) (*giftcard.Redemption, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var cardID string
	var remaining int64
	err = tx.QueryRow(ctx, `
		UPDATE gift_cards
		SET balance = balance - $2,
		    status = CASE WHEN balance - $2 = 0 THEN 'DEPLETED' ELSE status END,
		    updated_at = NOW()
		WHERE card_number = $1 AND status = 'ACTIVE' AND currency = $3 AND balance >= $2
		RETURNING id, balance
	`, cardNumber, amount.Amount, amount.Currency).Scan(&cardID, &remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainDebitFailure(ctx, cardNumber, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit gift card: %w", err)
	}

	entryID := ulid.Make().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO gift_card_ledger (id, gift_card_id, amount, balance_after, transaction_id)
		VALUES ($1, $2, $3, $4, $5)
	`, entryID, cardID, -amount.Amount, remaining, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to record gift card debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit gift card debit: %w", err)
	}

	return &giftcard.Redemption{
		CardNumber:       cardNumber,
		Amount:           amount,
		RemainingBalance: money.New(remaining, amount.Currency),
		RedemptionID:     entryID,
	}, nil
}

// Credit reverses up to the amount taken by the ledger entry redemptionID.
func (r *GiftCardRepository) Credit(ctx context.Context, redemptionID string, amount money.Money, transactionID string) (*giftcard.Redemption, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var cardID string
	var debited, alreadyCredited int64
	err = tx.QueryRow(ctx, `
		SELECT l.gift_card_id, -l.amount,
		       COALESCE((SELECT SUM(c.amount) FROM gift_card_ledger c WHERE c.reverses = l.id), 0)
		FROM gift_card_ledger l
		WHERE l.id = $1 AND l.amount < 0
		FOR UPDATE OF l
	`, redemptionID).Scan(&cardID, &debited, &alreadyCredited)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gift card redemption: %w", err)
	}
	if alreadyCredited+amount.Amount > debited {
		return nil, giftcard.ErrCreditExceedsDebit
	}

	var cardNumber, currency string
	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE gift_cards
		SET balance = balance + $2,
		    status = CASE WHEN status = 'DEPLETED' THEN 'ACTIVE' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING card_number, balance, currency
	`, cardID, amount.Amount).Scan(&cardNumber, &balance, &currency)
	if err != nil {
		return nil, fmt.Errorf("failed to credit gift card: %w", err)
	}
	if currency != amount.Currency {
		return nil, giftcard.ErrCurrencyMismatch
	}

	entryID := ulid.Make().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO gift_card_ledger (id, gift_card_id, amount, balance_after, transaction_id, reverses)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entryID, cardID, amount.Amount, balance, transactionID, redemptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to record gift card credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit gift card credit: %w", err)
	}

	return &giftcard.Redemption{
		CardNumber:       cardNumber,
		Amount:           amount,
		RemainingBalance: money.New(balance, currency),
		RedemptionID:     entryID,
	}, nil
}

func (r *GiftCardRepository) explainDebitFailure(ctx context.Context, cardNumber string, amount money.Money) error {
	c, err := r.FindByNumber(ctx, cardNumber)
	if err != nil {
		return err
	}
	switch {
	case c.Status != giftcard.StatusActive:
		return giftcard.ErrCardInactive
	case c.Balance.Currency != amount.Currency:
		return giftcard.ErrCurrencyMismatch
	}
	return fmt.Errorf("%w: available %s", giftcard.ErrInsufficientBalance, c.Balance)
}
