// internal/service/webhook/service.go
package webhook

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/events"
	xerrors "bloom-payments/internal/pkg/errors"

	"go.uber.org/zap"
)

type TransactionStore interface {
	FindByProviderTransactionID(ctx context.Context, p payment.Provider, providerTxID string) (*payment.PaymentTransaction, error)
	ConfirmPayment(ctx context.Context, id string, c payment.Confirmation) (*payment.PaymentTransaction, payment.ConfirmOutcome, error)
	IncrementRetryCount(ctx context.Context, id string) error
}

// ErrCheckoutInFlight is returned for a verdict on a tender whose checkout is
// still running. The delivery is refused so the provider sends it again.
var ErrCheckoutInFlight = fmt.Errorf("%w: checkout is still processing its payments", xerrors.ErrConflict)

type OrderSettler interface {
	MarkPaid(ctx context.Context, orderIDs []string) error
}

type Config struct {
	StripeSecret          string
	SquareSignatureKey    string
	SquareNotificationURL string
}

// Reconciler applies asynchronous provider outcomes to local transactions.
type Reconciler struct {
	cfg          Config
	transactions TransactionStore
	orders       OrderSettler
	dedupe       Deduper
	publisher    events.Publisher
	logger       *zap.Logger
}

// NewReconciler builds a Reconciler. A nil deduper relies on the status guard alone.
func NewReconciler(cfg Config, transactions TransactionStore, orders OrderSettler, dedupe Deduper, publisher events.Publisher, logger *zap.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Reconciler{
		cfg:          cfg,
		transactions: transactions,
		orders:       orders,
		dedupe:       dedupe,
		publisher:    publisher,
		logger:       logger,
	}
}

// HandleProviderWebhookEvent verifies and applies one delivery. Only signature
// failures and storage errors are returned; events that match nothing are
// logged and dropped.
func (r *Reconciler) HandleProviderWebhookEvent(ctx context.Context, p payment.Provider, raw RawEvent) error {
	var (
		n   *notification
		err error
	)
	switch p {
	case payment.ProviderStripe:
		n, err = parseStripe(raw, r.cfg.StripeSecret)
	case payment.ProviderSquare:
		n, err = parseSquare(raw, r.cfg.SquareSignatureKey, r.cfg.SquareNotificationURL)
	default:
		return fmt.Errorf("%w: no webhooks for provider %s", xerrors.ErrUnsupportedEvent, p)
	}
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidSignature) {
			r.logger.Warn("webhook rejected", zap.String("provider", string(p)), zap.Error(err))
		}
		return err
	}

	logger := r.logger.With(
		zap.String("provider", string(p)),
		zap.String("event_id", n.EventID),
		zap.String("event_type", n.EventType),
		zap.String("provider_tx_id", n.ProviderTxID),
	)

	if n.Status == "" {
		if n.Detail != "" {
			logger.Warn("webhook event recorded without transition", zap.String("detail", n.Detail))
		} else {
			logger.Debug("webhook event ignored")
		}
		return nil
	}
	if n.ProviderTxID == "" {
		logger.Warn("webhook event carries no payment id")
		return nil
	}

	key := fmt.Sprintf("webhook:%s:%s", p, n.EventID)
	if r.dedupe != nil && n.EventID != "" {
		claimed, err := r.dedupe.Claim(ctx, key)
		if err != nil {
			// the status guard still makes a redelivery harmless
			logger.Warn("webhook dedupe unavailable", zap.Error(err))
		} else if !claimed {
			logger.Info("duplicate webhook delivery dropped")
			return nil
		}
	}

	if err := r.apply(ctx, n, logger); err != nil {
		if r.dedupe != nil && n.EventID != "" {
			if relErr := r.dedupe.Release(ctx, key); relErr != nil {
				logger.Warn("failed to release webhook dedupe key", zap.Error(relErr))
			}
		}
		return err
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, n *notification, logger *zap.Logger) error {
	// Locate the local transaction
	txn, err := r.transactions.FindByProviderTransactionID(ctx, n.Provider, n.ProviderTxID)
	if errors.Is(err, xerrors.ErrNotFound) {
		logger.Info("webhook references no local transaction")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find transaction for %s: %w", n.ProviderTxID, err)
	}
	logger = logger.With(zap.String("transaction_id", txn.ID), zap.String("transaction_number", txn.TransactionNumber))

	if err := r.transactions.IncrementRetryCount(ctx, txn.ID); err != nil {
		logger.Warn("failed to bump reconciliation count", zap.Error(err))
	}

	// The tender moves first; the transaction follows once no tender is pending
	updated, outcome, err := r.transactions.ConfirmPayment(ctx, txn.ID, payment.Confirmation{
		Provider:     n.Provider,
		ProviderTxID: n.ProviderTxID,
		Status:       n.Status,
		Detail:       n.Detail,
	})
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", txn.ID, err)
	}
	switch outcome {
	case payment.ConfirmInFlight:
		logger.Info("checkout still running, asking provider to redeliver")
		return ErrCheckoutInFlight
	case payment.ConfirmIgnored:
		logger.Info("webhook has no effect",
			zap.String("current_status", string(updated.Status)),
			zap.String("reported_status", string(n.Status)),
		)
		return nil
	}

	logger.Info("payment confirmed",
		zap.String("reported_status", string(n.Status)),
		zap.String("status", string(updated.Status)),
	)
	if updated.Status == payment.StatusProcessing {
		// other tenders are still pending
		return nil
	}

	if updated.Status == payment.StatusCompleted && len(updated.OrderIDs) > 0 && r.orders != nil {
		if err := r.orders.MarkPaid(ctx, updated.OrderIDs); err != nil {
			logger.Error("failed to mark orders paid", zap.Strings("order_ids", updated.OrderIDs), zap.Error(err))
		}
	}

	events.PublishLogged(ctx, r.publisher, r.logger, events.ForTransaction(updated, "webhook"))
	return nil
}
