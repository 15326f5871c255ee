package payment

import "time"

// Confirmation is a provider's asynchronous verdict on one tender.
type Confirmation struct {
	Provider     Provider
	ProviderTxID string
	// Status is COMPLETED, FAILED or CANCELLED. PROCESSING carries no verdict.
	Status TransactionStatus
	Detail string
}

type ConfirmOutcome int

const (
	// ConfirmIgnored leaves the record as it is: the tender already reflects
	// the verdict or the transaction is final.
	ConfirmIgnored ConfirmOutcome = iota
	// ConfirmApplied moved the tender. The transaction status moved too when
	// no other tender is still pending.
	ConfirmApplied
	// ConfirmInFlight means the checkout is still running its tenders and the
	// verdict has to be delivered again later.
	ConfirmInFlight
)

func (o ConfirmOutcome) String() string {
	switch o {
	case ConfirmApplied:
		return "applied"
	case ConfirmInFlight:
		return "in_flight"
	}
	return "ignored"
}

// ResolveStatus decides where a transaction stands given its tenders and gift
// card lines. Pending tenders a provider will confirm keep it PROCESSING; a
// pending tender with nothing to confirm it (cash on delivery) cannot complete.
func ResolveStatus(methods []PaymentMethodResult, giftCards []GiftCardResult) TransactionStatus {
	awaiting := false
	for _, m := range methods {
		switch m.Status {
		case MethodFailed:
			return StatusFailed
		case MethodPending:
			if m.ProviderTransactionID == "" {
				return StatusFailed
			}
			awaiting = true
		}
	}
	for _, g := range giftCards {
		if g.Status != GiftCardActivated {
			return StatusFailed
		}
	}
	if awaiting {
		return StatusProcessing
	}
	return StatusCompleted
}

// ApplyConfirmation settles the pending tender named by c and re-derives the
// transaction status from all tenders. Nothing changes until the checkout has
// handed the transaction over (AwaitingConfirmation).
func ApplyConfirmation(t *PaymentTransaction, c Confirmation, now time.Time) ConfirmOutcome {
	if t.Status.IsTerminal() {
		return ConfirmIgnored
	}

	var target MethodStatus
	switch c.Status {
	case StatusCompleted:
		target = MethodCaptured
	case StatusFailed, StatusCancelled:
		target = MethodFailed
	default:
		return ConfirmIgnored
	}

	i := t.tenderIndex(c.Provider, c.ProviderTxID)
	if i < 0 || t.PaymentMethods[i].Status != MethodPending {
		return ConfirmIgnored
	}
	if !t.AwaitingConfirmation {
		return ConfirmInFlight
	}

	methods := make([]PaymentMethodResult, len(t.PaymentMethods))
	copy(methods, t.PaymentMethods)
	leg := methods[i]
	leg.Status = target
	leg.ProcessedAt = now
	if target == MethodFailed {
		leg.ErrorKind = ErrorProvider
		leg.ErrorCode = CodePaymentFailed
		leg.ErrorMessage = c.Detail
		if leg.ErrorMessage == "" {
			leg.ErrorMessage = "provider reported the payment did not complete"
		}
	}
	methods[i] = leg
	t.PaymentMethods = methods
	if c.Detail != "" {
		t.ErrorMessages = append(t.ErrorMessages, c.Detail)
	}

	status := ResolveStatus(t.PaymentMethods, t.GiftCards)
	if status == StatusFailed && c.Status == StatusCancelled {
		status = StatusCancelled
	}
	if status != StatusProcessing {
		t.Status = status
		t.AwaitingConfirmation = false
		if status == StatusCompleted {
			completed := now
			t.CompletedAt = &completed
		}
	}
	return ConfirmApplied
}
