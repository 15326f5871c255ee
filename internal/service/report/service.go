// internal/service/report/service.go
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"

	"go.uber.org/zap"
)

const topCustomerLimit = 10

type TransactionReader interface {
	FindByDateRange(ctx context.Context, from, to time.Time) ([]*payment.PaymentTransaction, error)
	Search(ctx context.Context, c payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error)
}

// Service aggregates transactions for the back office. Amounts in other
// currencies are counted but left out of the totals.
type Service struct {
	transactions TransactionReader
	currency     string
	location     *time.Location
	logger       *zap.Logger
}

func NewService(transactions TransactionReader, currency string, location *time.Location, logger *zap.Logger) *Service {
	if location == nil {
		location = time.Local
	}
	return &Service{
		transactions: transactions,
		currency:     strings.ToUpper(currency),
		location:     location,
		logger:       logger,
	}
}

// GetAnalytics summarises the transactions created in [from, to).
func (s *Service) GetAnalytics(ctx context.Context, from, to time.Time) (*payment.PaymentAnalytics, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: report range end must be after its start", xerrors.ErrInvalidInput)
	}

	txns, err := s.transactions.FindByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	a := &payment.PaymentAnalytics{
		From:            from,
		To:              to,
		TotalAmount:     money.Zero(s.currency),
		CompletedAmount: money.Zero(s.currency),
		RefundedAmount:  money.Zero(s.currency),
		ErrorsByKind:    map[payment.ErrorKind]int{},
		ByChannel:       map[payment.Channel]int{},
		StatusCounts:    map[payment.TransactionStatus]int{},
		GiftCards: payment.GiftCardMetrics{
			ActivatedAmount: money.Zero(s.currency),
			RedeemedAmount:  money.Zero(s.currency),
		},
	}

	methods := map[payment.PaymentMethodType]*payment.MethodStats{}
	var processing time.Duration
	var timed, completedInCurrency int

	for _, t := range txns {
		inCurrency := t.TotalAmount.Currency == s.currency

		if t.RefundOf != "" {
			if t.Status == payment.StatusCompleted && inCurrency {
				a.RefundedAmount = money.New(a.RefundedAmount.Amount+t.TotalAmount.Abs().Amount, s.currency)
			}
			continue
		}

		a.TotalTransactions++
		a.StatusCounts[t.Status]++
		a.ByChannel[t.Channel]++
		if inCurrency {
			a.TotalAmount = money.New(a.TotalAmount.Amount+t.TotalAmount.Amount, s.currency)
		}

		switch t.Status {
		case payment.StatusCompleted:
			a.CompletedTransactions++
			if inCurrency {
				a.CompletedAmount = money.New(a.CompletedAmount.Amount+t.TotalAmount.Amount, s.currency)
				completedInCurrency++
			}
			if t.CompletedAt != nil && !t.ProcessedAt.IsZero() {
				processing += t.CompletedAt.Sub(t.ProcessedAt)
				timed++
			}
		case payment.StatusFailed:
			a.FailedTransactions++
		}

		for _, m := range t.PaymentMethods {
			st, ok := methods[m.Type]
			if !ok {
				st = &payment.MethodStats{Type: m.Type, Amount: money.Zero(s.currency)}
				methods[m.Type] = st
			}
			st.Count++
			if m.Amount.Currency == s.currency {
				st.Amount = money.New(st.Amount.Amount+m.Amount.Amount, s.currency)
			}

			switch m.Status {
			case payment.MethodCaptured:
				st.SuccessCount++
				if m.Type == payment.MethodGiftCard || m.Type == payment.MethodStoreCredit {
					a.GiftCards.Redeemed++
					if m.Amount.Currency == s.currency {
						a.GiftCards.RedeemedAmount = money.New(a.GiftCards.RedeemedAmount.Amount+m.Amount.Amount, s.currency)
					}
				}
			case payment.MethodFailed:
				kind := m.ErrorKind
				if kind == "" {
					kind = payment.ErrorProvider
				}
				a.ErrorsByKind[kind]++
			}
		}

		for _, g := range t.GiftCards {
			if g.Status != payment.GiftCardActivated {
				a.GiftCards.FailedActivation++
				continue
			}
			a.GiftCards.Activated++
			if g.Amount.Currency == s.currency {
				a.GiftCards.ActivatedAmount = money.New(a.GiftCards.ActivatedAmount.Amount+g.Amount.Amount, s.currency)
			}
		}
	}

	a.AverageTransaction = money.Zero(s.currency)
	if completedInCurrency > 0 {
		a.AverageTransaction = money.New(a.CompletedAmount.Amount/int64(completedInCurrency), s.currency)
	}
	a.SuccessRate = percent(a.CompletedTransactions, a.TotalTransactions)
	a.FailureRate = percent(a.FailedTransactions, a.TotalTransactions)
	if timed > 0 {
		a.AverageProcessingTime = processing / time.Duration(timed)
	}

	a.ByMethod = make([]payment.MethodStats, 0, len(methods))
	for _, st := range methods {
		st.SuccessRate = percent(st.SuccessCount, st.Count)
		a.ByMethod = append(a.ByMethod, *st)
	}
	sort.Slice(a.ByMethod, func(i, j int) bool {
		if a.ByMethod[i].Amount.Amount != a.ByMethod[j].Amount.Amount {
			return a.ByMethod[i].Amount.Amount > a.ByMethod[j].Amount.Amount
		}
		return a.ByMethod[i].Type < a.ByMethod[j].Type
	})

	s.logger.Debug("analytics computed",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("transactions", a.TotalTransactions),
	)
	return a, nil
}

// GetDailySummary reports one calendar day in the shop's time zone.
func (s *Service) GetDailySummary(ctx context.Context, date time.Time) (*payment.DailySummary, error) {
	local := date.In(s.location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 0, 1)

	txns, err := s.transactions.FindByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	sum := &payment.DailySummary{
		Date:           from.Format("2006-01-02"),
		TotalAmount:    money.Zero(s.currency),
		RefundedAmount: money.Zero(s.currency),
		ByProvider:     []payment.ProviderBreakdown{},
		TopCustomers:   []payment.CustomerTotal{},
	}
	providers := map[payment.Provider]*payment.ProviderBreakdown{}
	customers := map[string]*payment.CustomerTotal{}

	for _, t := range txns {
		inCurrency := t.TotalAmount.Currency == s.currency

		if t.RefundOf != "" {
			if t.Status == payment.StatusCompleted && inCurrency {
				sum.RefundedAmount = money.New(sum.RefundedAmount.Amount+t.TotalAmount.Abs().Amount, s.currency)
			}
			continue
		}

		sum.TotalTransactions++
		if t.Status == payment.StatusFailed {
			sum.Failed++
		}
		if t.Status != payment.StatusCompleted {
			continue
		}
		sum.Completed++
		if !inCurrency {
			continue
		}
		sum.TotalAmount = money.New(sum.TotalAmount.Amount+t.TotalAmount.Amount, s.currency)

		for _, m := range t.PaymentMethods {
			if m.Status != payment.MethodCaptured || m.Amount.Currency != s.currency {
				continue
			}
			pb, ok := providers[m.Provider]
			if !ok {
				pb = &payment.ProviderBreakdown{Provider: m.Provider, Amount: money.Zero(s.currency)}
				providers[m.Provider] = pb
			}
			pb.Count++
			pb.Amount = money.New(pb.Amount.Amount+m.Amount.Amount, s.currency)
		}

		if t.CustomerID == "" {
			continue
		}
		ct, ok := customers[t.CustomerID]
		if !ok {
			ct = &payment.CustomerTotal{
				CustomerID: t.CustomerID,
				Name:       strings.TrimSpace(t.Customer.FirstName + " " + t.Customer.LastName),
				Amount:     money.Zero(s.currency),
			}
			customers[t.CustomerID] = ct
		}
		ct.Count++
		ct.Amount = money.New(ct.Amount.Amount+t.TotalAmount.Amount, s.currency)
	}

	net, err := sum.TotalAmount.Sub(sum.RefundedAmount)
	if err != nil {
		return nil, err
	}
	sum.NetAmount = net

	for _, pb := range providers {
		sum.ByProvider = append(sum.ByProvider, *pb)
	}
	sort.Slice(sum.ByProvider, func(i, j int) bool {
		if sum.ByProvider[i].Amount.Amount != sum.ByProvider[j].Amount.Amount {
			return sum.ByProvider[i].Amount.Amount > sum.ByProvider[j].Amount.Amount
		}
		return sum.ByProvider[i].Provider < sum.ByProvider[j].Provider
	})

	for _, ct := range customers {
		sum.TopCustomers = append(sum.TopCustomers, *ct)
	}
	sort.Slice(sum.TopCustomers, func(i, j int) bool {
		a, b := sum.TopCustomers[i], sum.TopCustomers[j]
		if a.Amount.Amount != b.Amount.Amount {
			return a.Amount.Amount > b.Amount.Amount
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.CustomerID < b.CustomerID
	})
	if len(sum.TopCustomers) > topCustomerLimit {
		sum.TopCustomers = sum.TopCustomers[:topCustomerLimit]
	}

	return sum, nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
