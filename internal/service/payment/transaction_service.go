// internal/service/payment/transaction_service.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/events"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/service/payment/adapter"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// DefaultProviderCallTimeout bounds a single adapter call.
const DefaultProviderCallTimeout = 30 * time.Second

// TransactionStore persists transactions. TransitionStatus and
// AwaitConfirmation only touch a record that is still PROCESSING.
type TransactionStore interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	Create(ctx context.Context, t *payment.PaymentTransaction) error
	SaveResults(ctx context.Context, id string, methods []payment.PaymentMethodResult, giftCards []payment.GiftCardResult) error
	AwaitConfirmation(ctx context.Context, id string) (bool, error)
	TransitionStatus(ctx context.Context, id string, status payment.TransactionStatus, errorMessages []string) (bool, error)
	FindByID(ctx context.Context, id string) (*payment.PaymentTransaction, error)
	FindByNumber(ctx context.Context, number string) (*payment.PaymentTransaction, error)
	FindRefunds(ctx context.Context, originalID string) ([]*payment.PaymentTransaction, error)
	Search(ctx context.Context, c payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error)
}

// CustomerStore resolves the customer a checkout is charged to.
type CustomerStore interface {
	FindByID(ctx context.Context, id string) (*customer.Customer, error)
	CreateGuest(ctx context.Context) (*customer.Customer, error)
	CreateFromData(ctx context.Context, data payment.CustomerData) (*customer.Customer, error)
}

// Dispatcher routes a tender to the adapter that handles it.
type Dispatcher interface {
	Dispatch(ctx context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult
	Refund(ctx context.Context, txn adapter.Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult
}

// GiftCardActivator issues the gift cards sold in a checkout.
type GiftCardActivator interface {
	Activate(ctx context.Context, txn adapter.Txn, req payment.GiftCardRequest) payment.GiftCardResult
}

// OrderSettler keeps linked orders in step with their payments.
type OrderSettler interface {
	MarkPaid(ctx context.Context, orderIDs []string) error
	Recalculate(ctx context.Context, orderIDs []string) error
}

// TransactionService runs checkouts and refunds.
type TransactionService struct {
	transactions TransactionStore
	customers    CustomerStore
	dispatcher   Dispatcher
	giftCards    GiftCardActivator
	orders       OrderSettler
	publisher    events.Publisher
	logger       *zap.Logger

	callTimeout time.Duration
	defaultCard payment.Provider
}

func NewTransactionService(
	transactions TransactionStore,
	customers CustomerStore,
	dispatcher Dispatcher,
	giftCards GiftCardActivator,
	orders OrderSettler,
	publisher events.Publisher,
	logger *zap.Logger,
) *TransactionService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TransactionService{
		transactions: transactions,
		customers:    customers,
		dispatcher:   dispatcher,
		giftCards:    giftCards,
		orders:       orders,
		publisher:    publisher,
		logger:       logger,
		callTimeout:  DefaultProviderCallTimeout,
	}
}

// SetProviderCallTimeout changes the per adapter call timeout. Non-positive values are ignored.
func (s *TransactionService) SetProviderCallTimeout(d time.Duration) {
	if d > 0 {
		s.callTimeout = d
	}
}

// SetDefaultCardProvider names the card provider blamed when an unhinted card
// call times out before an adapter answered.
func (s *TransactionService) SetDefaultCardProvider(p payment.Provider) {
	s.defaultCard = p
}

// ProcessTransaction runs one checkout end to end. Business failures are
// reported on the result; the error is non-nil only when the store failed
// and the result then carries SYSTEM_ERROR.
func (s *TransactionService) ProcessTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.TransactionResult, error) {
	start := time.Now()
	currency := req.Cart.GrandTotal.Currency

	// Validate before anything is persisted
	if errs := validateRequest(req); len(errs) > 0 {
		return payment.FailureResult(currency, errs...), nil
	}

	// Resolve customer
	cust, perr := s.resolveCustomer(ctx, req)
	if perr != nil {
		s.logger.Warn("customer resolution failed", zap.String("code", perr.Code), zap.String("message", perr.Message))
		return payment.FailureResult(currency, *perr), nil
	}

	// Allocate number and open the record
	number, err := s.transactions.NextNumber(ctx, payment.TransactionPrefix)
	if err != nil {
		return s.systemFailure(currency, "failed to allocate transaction number", err)
	}

	channel := req.Channel
	if channel == "" {
		channel = payment.ChannelPOS
	}

	txn := &payment.PaymentTransaction{
		ID:                ulid.Make().String(),
		TransactionNumber: number,
		CustomerID:        cust.ID,
		EmployeeID:        req.EmployeeID,
		Channel:           channel,
		TotalAmount:       req.Cart.GrandTotal,
		PaymentMethods:    []payment.PaymentMethodResult{},
		Status:            payment.StatusProcessing,
		Customer:          cust.Snapshot(),
		GiftCards:         []payment.GiftCardResult{},
		Cart:              req.Cart,
		AppliedDiscounts:  req.AppliedDiscounts,
		OrderIDs:          req.OrderIDs,
		Notes:             req.Notes,
		ProcessedAt:       start,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return s.systemFailure(currency, "failed to create transaction record", err)
	}

	s.logger.Info("transaction started",
		zap.String("transaction_id", txn.ID),
		zap.String("transaction_number", number),
		zap.String("customer_id", cust.ID),
		zap.Int("payment_methods", len(req.PaymentMethods)),
		zap.String("total", txn.TotalAmount.String()),
	)

	at := adapter.Txn{ID: txn.ID, Number: number, CustomerID: cust.ID, Contact: cust.Contact()}

	// Process each tender in order
	for i, m := range req.PaymentMethods {
		at.Leg = i + 1
		r := s.dispatch(ctx, at, m)
		txn.PaymentMethods = append(txn.PaymentMethods, r)
		s.saveProgress(ctx, txn)
	}

	// Gift card lines are issued whatever the tenders did
	at.Leg = 0
	for _, g := range req.GiftCards {
		txn.GiftCards = append(txn.GiftCards, s.giftCards.Activate(ctx, at, g))
	}

	if err := s.transactions.SaveResults(ctx, txn.ID, txn.PaymentMethods, txn.GiftCards); err != nil {
		result, serr := s.systemFailure(currency, "failed to save payment results", err)
		fillResult(result, txn, start)
		return result, serr
	}

	return s.finalize(ctx, txn, start)
}

// finalize settles the record once every tender has run. A transaction still
// waiting on a provider is handed to the webhook reconciler; anything else is
// moved to its final status here.
func (s *TransactionService) finalize(ctx context.Context, txn *payment.PaymentTransaction, start time.Time) (*payment.TransactionResult, error) {
	result := &payment.TransactionResult{Warnings: []string{}}
	fillResult(result, txn, start)

	for _, r := range txn.PaymentMethods {
		if r.Status != payment.MethodCaptured {
			result.Errors = append(result.Errors, r.AsError())
		}
	}
	for _, g := range txn.GiftCards {
		if g.Status != payment.GiftCardActivated {
			amount := g.Amount
			result.Errors = append(result.Errors, payment.PaymentError{
				Code:              payment.CodeGiftCardActivation,
				Message:           g.ErrorMessage,
				Kind:              payment.ErrorGiftCard,
				PaymentMethodType: payment.MethodGiftCard,
				Amount:            &amount,
				Retryable:         payment.ErrorGiftCard.Retryable(),
			})
		}
	}

	if issued := activatedCount(txn.GiftCards); issued > 0 && anyFailed(txn.PaymentMethods) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d gift card(s) were activated although a payment failed", issued))
	}

	status := payment.ResolveStatus(txn.PaymentMethods, txn.GiftCards)
	if status == payment.StatusProcessing {
		// Provider confirmation arrives by webhook from here on
		handedOver, err := s.transactions.AwaitConfirmation(ctx, txn.ID)
		if err != nil {
			failed, serr := s.systemFailure(txn.TotalAmount.Currency, "failed to hand transaction to provider confirmation", err)
			fillResult(failed, txn, start)
			failed.Errors = append(result.Errors, failed.Errors...)
			return failed, serr
		}
		if handedOver {
			txn.AwaitingConfirmation = true
			result.Status = status
			result.Warnings = append(result.Warnings, "payment is awaiting provider confirmation")
			s.logger.Info("transaction awaiting provider confirmation", zap.String("transaction_id", txn.ID))
			events.PublishLogged(ctx, s.publisher, s.logger, events.ForTransaction(txn, "checkout"))
			return result, nil
		}
	}

	messages := errorMessages(result.Errors)
	applied, err := s.transactions.TransitionStatus(ctx, txn.ID, status, messages)
	if err != nil {
		failed, serr := s.systemFailure(txn.TotalAmount.Currency, "failed to finalize transaction", err)
		fillResult(failed, txn, start)
		failed.Errors = append(result.Errors, failed.Errors...)
		return failed, serr
	}

	if !applied {
		// The record left PROCESSING under us; report what it holds
		persisted, err := s.transactions.FindByID(ctx, txn.ID)
		if err != nil {
			s.logger.Error("failed to re-read transaction", zap.String("transaction_id", txn.ID), zap.Error(err))
		} else {
			status = persisted.Status
			result.Warnings = append(result.Warnings, fmt.Sprintf("transaction was already finalized as %s", status))
		}
	}

	txn.Status = status
	result.Status = status
	result.Success = status == payment.StatusCompleted

	if applied && status == payment.StatusCompleted && len(txn.OrderIDs) > 0 && s.orders != nil {
		if err := s.orders.MarkPaid(ctx, txn.OrderIDs); err != nil {
			s.logger.Warn("failed to mark orders paid", zap.String("transaction_id", txn.ID), zap.Error(err))
			result.Warnings = append(result.Warnings, "linked orders could not be updated")
		}
	}

	s.logger.Info("transaction finalized",
		zap.String("transaction_id", txn.ID),
		zap.String("transaction_number", txn.TransactionNumber),
		zap.String("status", string(status)),
		zap.Bool("applied", applied),
		zap.Duration("elapsed", result.ProcessingTime),
	)

	if applied {
		events.PublishLogged(ctx, s.publisher, s.logger, events.ForTransaction(txn, "checkout"))
	}
	return result, nil
}

// dispatch runs one adapter call under the provider call timeout. A call that
// outlives it is reported as a retryable network failure and left to finish in
// the background.
func (s *TransactionService) dispatch(ctx context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	done := make(chan payment.PaymentMethodResult, 1)
	go func() {
		done <- s.dispatcher.Dispatch(callCtx, txn, req)
	}()

	select {
	case r := <-done:
		return r
	case <-callCtx.Done():
		s.logger.Warn("provider call timed out",
			zap.String("transaction_id", txn.ID),
			zap.String("type", string(req.Type)),
			zap.Duration("timeout", s.callTimeout),
		)
		p := req.Provider
		if p == "" {
			p = payment.DefaultProviderFor(req.Type, s.defaultCard)
		}
		return payment.Failed(req, p, payment.ErrorNetwork, payment.CodeProviderTimeout,
			fmt.Sprintf("%s payment timed out after %s", req.Type, s.callTimeout))
	}
}

func (s *TransactionService) resolveCustomer(ctx context.Context, req payment.TransactionRequest) (*customer.Customer, *payment.PaymentError) {
	fail := func(code, msg string) *payment.PaymentError {
		return &payment.PaymentError{Code: code, Message: msg, Kind: payment.ErrorCustomer}
	}

	if id := req.CustomerID(); id != "" {
		c, err := s.customers.FindByID(ctx, id)
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fail(payment.CodeCustomerResolution, fmt.Sprintf("customer %s not found", id))
		}
		if err != nil {
			return nil, fail(payment.CodeCustomerResolution, err.Error())
		}
		return c, nil
	}

	hasData := req.Customer != nil && !customerDataEmpty(*req.Customer)
	if !hasData && !req.CreateGuest {
		return nil, fail(payment.CodeCustomerRequired, "customer information required")
	}

	var (
		c   *customer.Customer
		err error
	)
	if req.CreateGuest || !hasData {
		c, err = s.customers.CreateGuest(ctx)
	} else {
		c, err = s.customers.CreateFromData(ctx, *req.Customer)
	}
	if err != nil {
		return nil, fail(payment.CodeCustomerResolution, err.Error())
	}
	return c, nil
}

func (s *TransactionService) saveProgress(ctx context.Context, txn *payment.PaymentTransaction) {
	if err := s.transactions.SaveResults(ctx, txn.ID, txn.PaymentMethods, txn.GiftCards); err != nil {
		s.logger.Warn("failed to save intermediate results", zap.String("transaction_id", txn.ID), zap.Error(err))
	}
}

func (s *TransactionService) systemFailure(currency, msg string, err error) (*payment.TransactionResult, error) {
	s.logger.Error(msg, zap.Error(err))
	result := payment.FailureResult(currency, payment.PaymentError{
		Code:      payment.CodeSystemError,
		Message:   msg,
		Kind:      payment.ErrorSystem,
		Retryable: true,
	})
	return result, fmt.Errorf("%s: %w", msg, err)
}

// GetTransaction accepts either the record id or a receipt number such as PT-10001.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*payment.PaymentTransaction, error) {
	for _, prefix := range []string{payment.TransactionPrefix, payment.RefundPrefix} {
		if _, err := payment.ParseNumber(prefix, id); err == nil {
			return s.transactions.FindByNumber(ctx, id)
		}
	}
	return s.transactions.FindByID(ctx, id)
}

func (s *TransactionService) SearchTransactions(ctx context.Context, c payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error) {
	return s.transactions.Search(ctx, c)
}

// validateRequest checks the request shape. Nothing has been persisted yet.
func validateRequest(req payment.TransactionRequest) []payment.PaymentError {
	var errs []payment.PaymentError
	fail := func(code, msg string) {
		errs = append(errs, payment.PaymentError{Code: code, Message: msg, Kind: payment.ErrorValidation})
	}

	if len(req.PaymentMethods) == 0 {
		fail(payment.CodeNoPaymentMethods, "at least one payment method is required")
	}
	if len(req.Cart.Items) == 0 {
		fail(payment.CodeNoCartItems, "cart items are required for payment processing")
	}

	grand := req.Cart.GrandTotal
	if err := grand.Validate(); err != nil {
		fail(payment.CodeAmountMismatch, err.Error())
		return errs
	}

	paid := money.Zero(grand.Currency)
	summed := true
	for i, m := range req.PaymentMethods {
		if err := m.Validate(); err != nil {
			summed = false
			fail(payment.CodeInvalidPaymentMethod, fmt.Sprintf("payment method %d: %s", i+1, err))
			continue
		}
		sum, err := paid.Add(m.Amount)
		if err != nil {
			summed = false
			fail(payment.CodeAmountMismatch, fmt.Sprintf("payment method %d is in %s, cart is in %s", i+1, m.Amount.Currency, grand.Currency))
			continue
		}
		paid = sum
	}

	if len(req.PaymentMethods) > 0 && summed {
		if ok, _ := paid.WithinTolerance(grand, payment.AmountTolerance); !ok {
			fail(payment.CodeAmountMismatch, fmt.Sprintf("payment methods total %s does not match transaction total %s", paid, grand))
		}
	}

	for i, g := range req.GiftCards {
		if !g.Amount.IsPositive() {
			fail(payment.CodeGiftCardError, fmt.Sprintf("gift card %d amount must be positive", i+1))
		}
		if g.DeliveryMethod == payment.DeliveryEmail && strings.TrimSpace(g.RecipientEmail) == "" {
			fail(payment.CodeGiftCardError, fmt.Sprintf("gift card %d is delivered by email but has no recipient email", i+1))
		}
	}
	return errs
}

func fillResult(result *payment.TransactionResult, txn *payment.PaymentTransaction, start time.Time) {
	result.TransactionID = txn.ID
	result.TransactionNumber = txn.TransactionNumber
	result.CustomerID = txn.CustomerID
	result.Status = txn.Status
	result.PaymentResults = txn.PaymentMethods
	result.GiftCardResults = txn.GiftCards
	if result.Errors == nil {
		result.Errors = []payment.PaymentError{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	processed := money.Zero(txn.TotalAmount.Currency)
	for _, r := range txn.PaymentMethods {
		if r.Status == payment.MethodCaptured {
			if sum, err := processed.Add(r.Amount); err == nil {
				processed = sum
			}
		}
	}
	failed, err := txn.TotalAmount.Sub(processed)
	if err != nil || failed.IsNegative() {
		failed = money.Zero(txn.TotalAmount.Currency)
	}

	result.TotalProcessed = processed
	result.TotalFailed = failed
	result.ProcessedAt = time.Now()
	result.ProcessingTime = time.Since(start)
}

func activatedCount(cards []payment.GiftCardResult) int {
	n := 0
	for _, g := range cards {
		if g.Status == payment.GiftCardActivated {
			n++
		}
	}
	return n
}

func anyFailed(methods []payment.PaymentMethodResult) bool {
	for _, m := range methods {
		if m.Status == payment.MethodFailed {
			return true
		}
	}
	return false
}

func errorMessages(errs []payment.PaymentError) []string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

func customerDataEmpty(d payment.CustomerData) bool {
	return strings.TrimSpace(d.FirstName) == "" && strings.TrimSpace(d.LastName) == "" &&
		strings.TrimSpace(d.Email) == "" && strings.TrimSpace(d.Phone) == ""
}
