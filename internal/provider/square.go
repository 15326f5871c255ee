// internal/provider/square.go
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	SquareProductionBaseURL = "https://connect.squareup.com"
	SquareSandboxBaseURL    = "https://connect.squareupsandbox.com"
	squareAPIVersion        = "2024-10-17"
	squareDefaultTimeout    = 30 * time.Second
)

// SquareClient is a thin REST client for the Square payments, customers, cards
// and refunds endpoints.
type SquareClient struct {
	http        *fasthttp.Client
	baseURL     string
	accessToken string
	locationID  string
	timeout     time.Duration
}

func NewSquareClient(accessToken, locationID, baseURL string, timeout time.Duration) *SquareClient {
	if timeout <= 0 {
		timeout = squareDefaultTimeout
	}
	return &SquareClient{
		http: &fasthttp.Client{
			Name:                "bloom-payments",
			MaxIdleConnDuration: time.Minute,
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		locationID:  locationID,
		timeout:     timeout,
	}
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Field    string `json:"field"`
}

type squareErrorBody struct {
	Errors []squareError `json:"errors"`
}

type squareCard struct {
	ID          string `json:"id"`
	CardBrand   string `json:"card_brand"`
	Last4       string `json:"last_4"`
	ExpMonth    int64  `json:"exp_month"`
	ExpYear     int64  `json:"exp_year"`
	Fingerprint string `json:"fingerprint"`
	CustomerID  string `json:"customer_id"`
	Enabled     bool   `json:"enabled"`
}

type squarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CardDetails *struct {
		Status         string     `json:"status"`
		Card           squareCard `json:"card"`
		AuthResultCode string     `json:"auth_result_code"`
	} `json:"card_details"`
}

func (c *SquareClient) CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	body := map[string]interface{}{
		"source_id":       req.SourceID,
		"idempotency_key": key,
		"amount_money":    squareMoney{Amount: req.Amount.Amount, Currency: req.Amount.Currency},
		"autocomplete":    true,
	}
	if c.locationID != "" {
		body["location_id"] = c.locationID
	}
	if req.CustomerID != "" {
		body["customer_id"] = req.CustomerID
	}
	if req.ReferenceID != "" {
		body["reference_id"] = req.ReferenceID
	}
	if req.Description != "" {
		body["note"] = req.Description
	}

	var out struct {
		Payment squarePayment `json:"payment"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}

	p := out.Payment
	ch := &Charge{ID: p.ID, RawStatus: p.Status}
	switch p.Status {
	case "COMPLETED":
		ch.Status = ChargeSucceeded
	case "APPROVED", "PENDING":
		ch.Status = ChargePending
	default:
		ch.Status = ChargeFailed
	}
	if p.CardDetails != nil {
		ch.AuthorizationCode = p.CardDetails.AuthResultCode
		ch.CardBrand = p.CardDetails.Card.CardBrand
		ch.CardLast4 = p.CardDetails.Card.Last4
	}
	return ch, nil
}

func (c *SquareClient) CreateCustomer(ctx context.Context, contact customer.ContactInfo) (string, error) {
	given, family, _ := strings.Cut(strings.TrimSpace(contact.Name), " ")
	body := map[string]interface{}{
		"idempotency_key": uuid.NewString(),
	}
	if given != "" {
		body["given_name"] = given
	}
	if family != "" {
		body["family_name"] = family
	}
	if contact.Email != "" {
		body["email_address"] = contact.Email
	}
	if contact.Phone != "" {
		body["phone_number"] = contact.Phone
	}

	var out struct {
		Customer struct {
			ID string `json:"id"`
		} `json:"customer"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v2/customers", body, &out); err != nil {
		return "", err
	}
	return out.Customer.ID, nil
}

func (c *SquareClient) ListCards(ctx context.Context, providerCustomerID string) ([]customer.SavedCard, error) {
	var cards []customer.SavedCard
	cursor := ""

	for {
		q := url.Values{}
		q.Set("customer_id", providerCustomerID)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var out struct {
			Cards  []squareCard `json:"cards"`
			Cursor string       `json:"cursor"`
		}
		if err := c.do(ctx, fasthttp.MethodGet, "/v2/cards?"+q.Encode(), nil, &out); err != nil {
			return nil, err
		}

		for _, sc := range out.Cards {
			if !sc.Enabled {
				continue
			}
			cards = append(cards, customer.SavedCard{
				ID:                 sc.ID,
				Provider:           payment.ProviderSquare,
				ProviderCustomerID: providerCustomerID,
				Brand:              sc.CardBrand,
				Last4:              sc.Last4,
				ExpMonth:           sc.ExpMonth,
				ExpYear:            sc.ExpYear,
				Fingerprint:        sc.Fingerprint,
			})
		}

		if out.Cursor == "" {
			return cards, nil
		}
		cursor = out.Cursor
	}
}

func (c *SquareClient) Refund(ctx context.Context, providerTxID string, amount money.Money, idempotencyKey string) (string, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	body := map[string]interface{}{
		"idempotency_key": idempotencyKey,
		"payment_id":      providerTxID,
		"amount_money":    squareMoney{Amount: amount.Amount, Currency: amount.Currency},
	}

	var out struct {
		Refund struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"refund"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v2/refunds", body, &out); err != nil {
		return "", err
	}
	return out.Refund.ID, nil
}

func (c *SquareClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Square-Version", squareAPIVersion)
	req.Header.SetContentType("application/json")

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal square request: %w", err)
		}
		req.SetBody(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return &APIError{
			Provider: payment.ProviderSquare,
			Category: CategoryNetwork,
			Message:  err.Error(),
			Err:      err,
		}
	}

	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		return translateSquareError(status, resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to decode square response: %w", err)
		}
	}
	return nil
}

func translateSquareError(status int, body []byte) error {
	apiErr := &APIError{
		Provider:   payment.ProviderSquare,
		Category:   CategoryProvider,
		HTTPStatus: status,
		Message:    fmt.Sprintf("square returned status %d", status),
	}

	var parsed squareErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 {
		apiErr.Err = errors.New(string(body))
		return apiErr
	}

	first := parsed.Errors[0]
	apiErr.Code = first.Code
	apiErr.Message = first.Detail

	switch {
	case first.Code == "INSUFFICIENT_FUNDS":
		apiErr.Category = CategoryInsufficientFunds
	case first.Category == "PAYMENT_METHOD_ERROR" || strings.Contains(first.Code, "DECLINE"):
		apiErr.Category = CategoryCardDeclined
	case first.Code == "NOT_FOUND" && (first.Field == "customer_id" || strings.Contains(strings.ToLower(first.Detail), "customer")):
		apiErr.Category = CategoryResourceMissing
	case status < fasthttp.StatusInternalServerError && first.Category == "INVALID_REQUEST_ERROR":
		apiErr.Category = CategoryInvalidRequest
	}
	return apiErr
}
