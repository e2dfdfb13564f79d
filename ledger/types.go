/*
Package ledger provides the debt ledger for shared expenses.

PURPOSE:
  Tracks who owes whom inside a chat. Every expense split and every
  repayment is recorded as an immutable debt transaction; balances are
  derived on demand by summing the log per (debtor, creditor) pair.

KEY CONCEPTS IN THIS FILE (types.go):
  - ChatID: The unit of isolation. Each chat has its own ledger.
  - Amount: Fixed-point money, always 2 fractional digits
  - Transaction: One committed debt row (debtor owes creditor amount)
  - Entry: A debt row before it is committed (no id yet)
  - PaymentIdentifier: The card a user wants repayments sent to

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never edited, only bulk-cleared by reset
  2. Precision: decimal.Decimal everywhere, never float64
  3. Isolation: Nothing in this package aggregates across chats

SEE ALSO:
  - store.go: Persistence contract
  - balance.go: Aggregation of the log into balances
  - ledger.go: The facade used by command handlers
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ChatID identifies an isolated ledger. Telegram-style ids may be negative.
type ChatID int64

// TransactionID is assigned by the store, increasing within a chat.
type TransactionID int64

// NormalizeUsername trims whitespace and a leading '@' from a mention.
func NormalizeUsername(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

// =============================================================================
// AMOUNT - Fixed-point money
// =============================================================================

// AmountScale is the number of fractional digits kept for money.
const AmountScale = 2

// RoundAmount rounds to AmountScale digits, half away from zero.
// This is the single rounding policy used for shares and balances.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// ParseAmount parses a user-supplied amount ("90", "12.5", "1,50").
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &RequestError{Field: "amount", Reason: "not a number: " + s}
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Kind records which command produced a transaction. It never affects balances.
type Kind string

const (
	KindSplit   Kind = "split"   // share of an expense paid by the creditor
	KindPayback Kind = "payback" // repayment, stored as a debt in the opposite direction
)

// Entry is a debt row handed to Store.AppendBatch.
type Entry struct {
	Debtor    string
	Creditor  string
	Amount    decimal.Decimal
	Kind      Kind
	Memo      string
	BatchID   string
	Timestamp time.Time // zero means "commit time"
}

// Validate checks the per-row invariants enforced by every store.
func (e Entry) Validate() error {
	if e.Debtor == "" {
		return &RequestError{Field: "debtor", Reason: "must not be empty"}
	}
	if e.Creditor == "" {
		return &RequestError{Field: "creditor", Reason: "must not be empty"}
	}
	if !e.Amount.IsPositive() {
		return &RequestError{Field: "amount", Reason: "must be positive"}
	}
	if !e.Amount.Equal(RoundAmount(e.Amount)) {
		return &RequestError{Field: "amount", Reason: "more than 2 fractional digits"}
	}
	return nil
}

// Transaction is a committed, immutable debt row.
type Transaction struct {
	ID        TransactionID
	ChatID    ChatID
	Timestamp time.Time
	Debtor    string
	Creditor  string
	Amount    decimal.Decimal
	Kind      Kind
	Memo      string
	BatchID   string
}

// Pair returns the balance bucket this transaction belongs to.
func (t Transaction) Pair() Pair {
	return Pair{Debtor: t.Debtor, Creditor: t.Creditor}
}

// =============================================================================
// PAYMENT IDENTIFIER
// =============================================================================

// PaymentIdentifier is the single card number stored per (chat, username).
type PaymentIdentifier struct {
	ChatID    ChatID
	Username  string
	Number    string
	UpdatedAt time.Time
}
