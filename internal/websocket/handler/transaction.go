// internal/websocket/handler/transaction.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bloom-payments/internal/domain/payment"
	wstypes "bloom-payments/internal/domain/websocket"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/jwt"
	ws "bloom-payments/internal/websocket"
)

type TransactionReader interface {
	GetTransaction(ctx context.Context, id string) (*payment.PaymentTransaction, error)
}

// TransactionHandler lets a terminal poll a transaction it is waiting on,
// typically one left PROCESSING until a provider webhook lands.
type TransactionHandler struct {
	transactions TransactionReader
}

func NewTransactionHandler(transactions TransactionReader) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

func (h *TransactionHandler) Requests() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeTransactionGet}
}

// AllowedRoles limits lookups to staff who work the till.
func (h *TransactionHandler) AllowedRoles() []string {
	return []string{jwt.RoleCashier, jwt.RoleManager, jwt.RoleAdmin}
}

func (h *TransactionHandler) HandleRequest(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.TransactionLookup
	if err := ws.DecodeData(msg.Data, &req); err != nil {
		return fmt.Errorf("invalid lookup: %w", err)
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return fmt.Errorf("transaction_id is required")
	}

	txn, err := h.transactions.GetTransaction(ctx, req.TransactionID)
	if errors.Is(err, xerrors.ErrNotFound) {
		client.SendError("not_found", "Transaction not found", req.TransactionID)
		return nil
	}
	if err != nil {
		return err
	}

	reply := wstypes.NewMessage(wstypes.EventTypeTransactionStatus, wstypes.TransactionStatusData{
		TransactionID:     txn.ID,
		TransactionNumber: txn.TransactionNumber,
		Status:            string(txn.Status),
		Amount:            txn.TotalAmount.String(),
		ErrorMessages:     txn.ErrorMessages,
	})
	if msg.ID != "" {
		reply.Metadata = map[string]interface{}{"reply_to": msg.ID}
	}
	client.SendMessage(reply)
	return nil
}
