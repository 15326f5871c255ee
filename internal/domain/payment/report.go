package payment

import (
	"time"

	"bloom-payments/internal/pkg/money"
)

type MethodStats struct {
	Type         PaymentMethodType `json:"type"`
	Count        int               `json:"count"`
	Amount       money.Money       `json:"amount"`
	SuccessCount int               `json:"success_count"`
	SuccessRate  float64           `json:"success_rate"`
}

type GiftCardMetrics struct {
	Activated        int         `json:"activated"`
	ActivatedAmount  money.Money `json:"activated_amount"`
	Redeemed         int         `json:"redeemed"`
	RedeemedAmount   money.Money `json:"redeemed_amount"`
	FailedActivation int         `json:"failed_activation"`
}

type PaymentAnalytics struct {
	From                  time.Time                 `json:"from"`
	To                    time.Time                 `json:"to"`
	TotalTransactions     int                       `json:"total_transactions"`
	CompletedTransactions int                       `json:"completed_transactions"`
	FailedTransactions    int                       `json:"failed_transactions"`
	TotalAmount           money.Money               `json:"total_amount"`
	CompletedAmount       money.Money               `json:"completed_amount"`
	AverageTransaction    money.Money               `json:"average_transaction"`
	SuccessRate           float64                   `json:"success_rate"`
	FailureRate           float64                   `json:"failure_rate"`
	ByMethod              []MethodStats             `json:"by_method"`
	ErrorsByKind          map[ErrorKind]int         `json:"errors_by_kind"`
	ByChannel             map[Channel]int           `json:"by_channel"`
	AverageProcessingTime time.Duration             `json:"average_processing_time_ns"`
	GiftCards             GiftCardMetrics           `json:"gift_cards"`
	RefundedAmount        money.Money               `json:"refunded_amount"`
	StatusCounts          map[TransactionStatus]int `json:"status_counts"`
}

type ProviderBreakdown struct {
	Provider Provider    `json:"provider"`
	Count    int         `json:"count"`
	Amount   money.Money `json:"amount"`
}

type CustomerTotal struct {
	CustomerID string      `json:"customer_id"`
	Name       string      `json:"name"`
	Count      int         `json:"count"`
	Amount     money.Money `json:"amount"`
}

type DailySummary struct {
	Date              string              `json:"date"`
	TotalTransactions int                 `json:"total_transactions"`
	Completed         int                 `json:"completed"`
	Failed            int                 `json:"failed"`
	TotalAmount       money.Money         `json:"total_amount"`
	RefundedAmount    money.Money         `json:"refunded_amount"`
	NetAmount         money.Money         `json:"net_amount"`
	ByProvider        []ProviderBreakdown `json:"by_provider"`
	TopCustomers      []CustomerTotal     `json:"top_customers"`
}
