/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures exchanged with the chat front-end. The
  front-end (a bot or a web page) resolves a user's command into one of
  these requests; the replies carry plain values it can render.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

AMOUNTS:
  Requests accept amounts as JSON numbers or strings ("90", "12.50",
  "1,50").
  Responses always use strings with two fractional digits.
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/debt-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// Amount is a request amount given as a JSON number or string. Strings
// may use a decimal comma ("1,50"). A missing amount is zero.
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON parses the amount with ledger.ParseAmount.
func (a *Amount) UnmarshalJSON(b []byte) error {
	d, err := ledger.ParseAmount(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// SplitRequest records an expense paid by Payer and shared with Participants.
type SplitRequest struct {
	Payer        string   `json:"payer"`
	Participants []string `json:"participants"`
	Amount       Amount   `json:"amount"`
	Memo         string   `json:"memo"`
}

// PaybackRequest records a repayment from Payer to exactly one counterparty.
type PaybackRequest struct {
	Payer          string   `json:"payer"`
	Counterparties []string `json:"counterparties"`
	Amount         Amount   `json:"amount"`
	Memo           string   `json:"memo"`
}

// CardRequest links a card number to a user.
type CardRequest struct {
	CardNumber string `json:"card_number"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// EntryDTO is a debt row written by a command.
type EntryDTO struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   string `json:"amount"`
}

// SplitDTO is the reply to a split.
type SplitDTO struct {
	BatchID      string     `json:"batch_id"`
	Payer        string     `json:"payer"`
	Participants []string   `json:"participants"`
	Total        string     `json:"total"`
	Share        string     `json:"share"`
	Remainder    string     `json:"remainder"`
	Memo         string     `json:"memo,omitempty"`
	Entries      []EntryDTO `json:"entries"`
}

// PaybackDTO is the reply to a payback.
type PaybackDTO struct {
	BatchID string   `json:"batch_id"`
	Entry   EntryDTO `json:"entry"`
	Memo    string   `json:"memo,omitempty"`
}

// BalanceDTO is one pair balance.
type BalanceDTO struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   string `json:"amount"`
}

// MemberTotalDTO summarizes a member across pairs.
type MemberTotalDTO struct {
	Member string `json:"member"`
	Owes   string `json:"owes"`
	Owed   string `json:"owed"`
	Net    string `json:"net"`
}

// BalancesDTO is the reply to a balance query.
type BalancesDTO struct {
	ChatID   int64            `json:"chat_id"`
	Balances []BalanceDTO     `json:"balances"`
	Members  []MemberTotalDTO `json:"members"`
}

// TransactionDTO is one row of the full history.
type TransactionDTO struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Debtor    string `json:"debtor"`
	Creditor  string `json:"creditor"`
	Amount    string `json:"amount"`
	Kind      string `json:"kind"`
	Memo      string `json:"memo,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
}

// CardDTO is a stored card.
type CardDTO struct {
	Username   string `json:"username"`
	CardNumber string `json:"card_number"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{Debtor: e.Debtor, Creditor: e.Creditor, Amount: ledger.FormatAmount(e.Amount)}
}

func toSplitDTO(res ledger.SplitResult) SplitDTO {
	dto := SplitDTO{
		BatchID:      res.BatchID,
		Payer:        res.Payer,
		Participants: res.Participants,
		Total:        ledger.FormatAmount(res.Total),
		Share:        ledger.FormatAmount(res.Share),
		Remainder:    ledger.FormatAmount(res.Remainder),
		Memo:         res.Memo,
		Entries:      make([]EntryDTO, 0, len(res.Entries)),
	}
	for _, e := range res.Entries {
		dto.Entries = append(dto.Entries, toEntryDTO(e))
	}
	return dto
}

func toBalancesDTO(chatID ledger.ChatID, b ledger.Balances) BalancesDTO {
	dto := BalancesDTO{
		ChatID:   int64(chatID),
		Balances: make([]BalanceDTO, 0, len(b)),
		Members:  []MemberTotalDTO{},
	}
	for _, bal := range b.Sorted() {
		dto.Balances = append(dto.Balances, BalanceDTO{
			Debtor:   bal.Debtor,
			Creditor: bal.Creditor,
			Amount:   ledger.FormatAmount(bal.Amount),
		})
	}
	for _, m := range ledger.MemberTotals(b) {
		dto.Members = append(dto.Members, MemberTotalDTO{
			Member: m.Member,
			Owes:   ledger.FormatAmount(m.Owes),
			Owed:   ledger.FormatAmount(m.Owed),
			Net:    ledger.FormatAmount(m.Net()),
		})
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, TransactionDTO{
			ID:        int64(tx.ID),
			Timestamp: tx.Timestamp.Format(time.RFC3339),
			Debtor:    tx.Debtor,
			Creditor:  tx.Creditor,
			Amount:    ledger.FormatAmount(tx.Amount),
			Kind:      string(tx.Kind),
			Memo:      tx.Memo,
			BatchID:   tx.BatchID,
		})
	}
	return dtos
}
