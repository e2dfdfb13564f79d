/*
handlers.go - HTTP API handlers for the debt ledger

PURPOSE:
  Exposes the ledger facade over HTTP for the chat front-end. Handles
  request decoding, JSON serialization and error mapping; all rules live
  in the ledger package.

ENDPOINTS:
  Expenses:
    POST   /api/chats/{chatID}/splits            Record an equal split
    POST   /api/chats/{chatID}/paybacks          Record a repayment

  Queries:
    GET    /api/chats/{chatID}/balances          Pair balances + member totals
    GET    /api/chats/{chatID}/transactions      Full history
    GET    /api/chats/{chatID}/report.csv        Full history as CSV

  Admin:
    POST   /api/chats/{chatID}/reset             Drop all debts of the chat

  Cards:
    PUT    /api/chats/{chatID}/cards/{username}  Link a card number
    GET    /api/chats/{chatID}/cards/{username}  Look a card number up

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid request or invalid card number
  - 404: No card stored for the user
  - 500: Storage failure (nothing was written)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/debt-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Ledger
	Logger *slog.Logger
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(l *ledger.Ledger, logger *slog.Logger) *Handler {
	return &Handler{Ledger: l, Logger: logger}
}

func chatIDParam(r *http.Request) (ledger.ChatID, error) {
	raw := chi.URLParam(r, "chatID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ledger.RequestError{Field: "chat_id", Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return ledger.ChatID(id), nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ledger.RequestError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// RecordSplit records an equal split.
// POST /api/chats/{chatID}/splits
func (h *Handler) RecordSplit(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req SplitRequest
	if err := decodeBody(r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}

	res, err := h.Ledger.RecordSplit(r.Context(), chatID, req.Payer, req.Participants, req.Amount.Decimal, req.Memo)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSplitDTO(res))
}

// RecordPayback records a repayment.
// POST /api/chats/{chatID}/paybacks
func (h *Handler) RecordPayback(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req PaybackRequest
	if err := decodeBody(r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}

	res, err := h.Ledger.RecordPayback(r.Context(), chatID, req.Payer, req.Counterparties, req.Amount.Decimal, req.Memo)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaybackDTO{
		BatchID: res.BatchID,
		Entry:   toEntryDTO(res.Entry),
		Memo:    res.Entry.Memo,
	})
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// GetBalances returns pair balances and member totals.
// GET /api/chats/{chatID}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	balances, err := h.Ledger.GetBalances(r.Context(), chatID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(chatID, balances))
}

// GetTransactions returns the full history.
// GET /api/chats/{chatID}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), chatID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id":      int64(chatID),
		"transactions": toTransactionDTOs(txs),
	})
}

// GetReport streams the full history as CSV.
// GET /api/chats/{chatID}/report.csv
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), chatID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="debts-%d-%s.csv"`, chatID, time.Now().UTC().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	if err := WriteReport(w, txs); err != nil {
		h.Logger.Error("report write failed", "chat_id", chatID, "error", err)
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetLedger drops the chat's debts.
// POST /api/chats/{chatID}/reset
func (h *Handler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	n, err := h.Ledger.ResetLedger(r.Context(), chatID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "reset",
		"removed": n,
	})
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// LinkCard stores a card number for a user.
// PUT /api/chats/{chatID}/cards/{username}
func (h *Handler) LinkCard(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	username := chi.URLParam(r, "username")
	var req CardRequest
	if err := decodeBody(r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}

	if err := h.Ledger.LinkPaymentIdentifier(r.Context(), chatID, username, req.CardNumber); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "saved",
		"username": ledger.NormalizeUsername(username),
	})
}

// GetCard returns a user's card number.
// GET /api/chats/{chatID}/cards/{username}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	pi, err := h.Ledger.LookupPaymentIdentifier(r.Context(), chatID, chi.URLParam(r, "username"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dto := CardDTO{Username: pi.Username, CardNumber: pi.Number}
	if !pi.UpdatedAt.IsZero() {
		dto.UpdatedAt = pi.UpdatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// Health reports that the server is up.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps the ledger error taxonomy to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, "Invalid card number", err)
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Storage failure", err)
	}
}
