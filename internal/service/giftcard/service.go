// internal/service/giftcard/service.go
package giftcard

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"bloom-payments/internal/domain/giftcard"
	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/service/email"
	"bloom-payments/internal/service/payment/adapter"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	// ElectronicPrefix starts every number issued for email delivery.
	ElectronicPrefix = "EGC-"
	// alphabet leaves out characters that are easy to misread on a receipt.
	alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxNumberAttempts = 3
)

type Store interface {
	Create(ctx context.Context, c *giftcard.GiftCard) error
	FindByNumber(ctx context.Context, cardNumber string) (*giftcard.GiftCard, error)
	Debit(ctx context.Context, cardNumber string, amount money.Money, transactionID string) (*giftcard.Redemption, error)
	Credit(ctx context.Context, redemptionID string, amount money.Money, transactionID string) (*giftcard.Redemption, error)
}

type Mailer interface {
	Send(to, subject, bodyHTML string) error
}

// Service issues gift cards sold at checkout and moves their balances.
type Service struct {
	store  Store
	mailer Mailer
	logger *zap.Logger
}

func NewService(store Store, mailer Mailer, logger *zap.Logger) *Service {
	return &Service{store: store, mailer: mailer, logger: logger}
}

// Activate issues one purchased card. It never returns an error; failures are
// reported on the result.
func (s *Service) Activate(ctx context.Context, txn adapter.Txn, req payment.GiftCardRequest) payment.GiftCardResult {
	result := payment.GiftCardResult{
		Amount:         req.Amount,
		DeliveryMethod: req.DeliveryMethod,
		DeliveryStatus: payment.DeliveryNotRequired,
	}
	if result.DeliveryMethod == "" {
		result.DeliveryMethod = payment.DeliveryNone
	}

	fail := func(msg string) payment.GiftCardResult {
		result.Status = payment.GiftCardFailed
		result.ErrorMessage = msg
		return result
	}

	if !req.Amount.IsPositive() {
		return fail("gift card amount must be positive")
	}

	preset := strings.ToUpper(strings.TrimSpace(req.CardNumber))
	if preset != "" && req.DeliveryMethod == payment.DeliveryEmail && !strings.HasPrefix(preset, ElectronicPrefix) {
		return fail("digital gift card numbers must start with " + ElectronicPrefix)
	}

	code, err := randomString(8)
	if err != nil {
		return fail("failed to generate activation code")
	}

	card := &giftcard.GiftCard{
		ID:             ulid.Make().String(),
		ActivationCode: code,
		Kind:           giftcard.KindGiftCard,
		InitialBalance: req.Amount,
		Balance:        req.Amount,
		Status:         giftcard.StatusActive,
		RecipientName:  nullString(req.RecipientName),
		RecipientEmail: nullString(req.RecipientEmail),
		Message:        nullString(req.Message),
		TransactionID:  nullString(txn.ID),
	}
	if txn.CustomerID != "" {
		card.PurchasedByCustomerID = nullString(txn.CustomerID)
	}

	// Persist, drawing a fresh number on collision unless the clerk scanned one
	for attempt := 1; ; attempt++ {
		card.CardNumber = preset
		if card.CardNumber == "" {
			if card.CardNumber, err = newCardNumber(); err != nil {
				return fail("failed to generate card number")
			}
		}

		err = s.store.Create(ctx, card)
		if err == nil {
			break
		}
		if preset == "" && errors.Is(err, xerrors.ErrDuplicateEntry) && attempt < maxNumberAttempts {
			continue
		}
		s.logger.Error("failed to activate gift card", zap.String("transaction_id", txn.ID), zap.Error(err))
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return fail(fmt.Sprintf("gift card %s is already active", card.CardNumber))
		}
		return fail("failed to activate gift card")
	}

	result.CardNumber = card.CardNumber
	result.ActivationCode = card.ActivationCode
	result.Status = payment.GiftCardActivated

	if req.DeliveryMethod == payment.DeliveryEmail {
		result.DeliveryStatus = s.deliver(card, req)
	}

	s.logger.Info("gift card activated",
		zap.String("transaction_id", txn.ID),
		zap.String("card_number", card.CardNumber),
		zap.String("amount", req.Amount.String()),
		zap.String("delivery", string(result.DeliveryStatus)),
	)
	return result
}

func (s *Service) deliver(card *giftcard.GiftCard, req payment.GiftCardRequest) payment.DeliveryStatus {
	if s.mailer == nil {
		return payment.DeliveryPending
	}

	subject, body := email.GiftCardEmail(email.GiftCardMessage{
		RecipientName:  req.RecipientName,
		CardNumber:     card.CardNumber,
		ActivationCode: card.ActivationCode,
		Amount:         req.Amount.String(),
		Message:        req.Message,
	})
	if err := s.mailer.Send(req.RecipientEmail, subject, body); err != nil {
		s.logger.Warn("gift card email not delivered",
			zap.String("card_number", card.CardNumber),
			zap.Error(err),
		)
		return payment.DeliveryFailed
	}
	return payment.DeliverySent
}

// Lookup returns a card for a balance check at the counter.
func (s *Service) Lookup(ctx context.Context, cardNumber string) (*giftcard.GiftCard, error) {
	number := strings.ToUpper(strings.TrimSpace(cardNumber))
	if number == "" {
		return nil, fmt.Errorf("%w: card number is required", xerrors.ErrInvalidInput)
	}
	return s.store.FindByNumber(ctx, number)
}

// Redeem debits a card balance.
func (s *Service) Redeem(ctx context.Context, cardNumber string, amount money.Money, transactionID string) (*giftcard.Redemption, error) {
	number := strings.ToUpper(strings.TrimSpace(cardNumber))
	if number == "" {
		return nil, fmt.Errorf("%w: card number is required", xerrors.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: redemption amount must be positive", xerrors.ErrInvalidInput)
	}
	return s.store.Debit(ctx, number, amount, transactionID)
}

// Credit returns money to the card debited by redemptionID.
func (s *Service) Credit(ctx context.Context, redemptionID string, amount money.Money, transactionID string) (*giftcard.Redemption, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive", xerrors.ErrInvalidInput)
	}
	return s.store.Credit(ctx, redemptionID, amount, transactionID)
}

// newCardNumber returns EGC-XXXX-XXXX-XXXX.
func newCardNumber() (string, error) {
	raw, err := randomString(12)
	if err != nil {
		return "", err
	}
	return ElectronicPrefix + raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12], nil
}

func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
