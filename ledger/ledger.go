/*
ledger.go - Facade used by chat command handlers

PURPOSE:
  The whole external contract of the debt ledger. A command handler
  resolves a chat message into plain values (chat, actor, counterparties,
  amount, memo) and calls one method here; it gets back plain data or a
  classified error (see errors.go) to render.

OPERATIONS:
  RecordSplit:             equal split of an expense paid by one member
  RecordPayback:           one repayment row
  GetBalances:             pair balances derived from the log
  Transactions:            full log, for export
  ResetLedger:             drop the chat's log (cards stay)
  LinkPaymentIdentifier:   store a validated card for a user
  LookupPaymentIdentifier: read it back

VALIDATION ORDER:
  Requests are validated before the store is touched, so an
  InvalidRequest/InvalidIdentifier error always means nothing was written.
  Store errors are passed through; the store has already rolled back.

SEE ALSO:
  - split.go: Equal-split arithmetic
  - balance.go: Aggregation
  - card/luhn.go: Card number validation
*/
package ledger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/debt-ledger/card"
)

// Observer receives the outcome of every facade operation.
// metrics.Recorder implements it.
type Observer interface {
	Observe(op string, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, error, time.Duration) {}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// Ledger is the facade over a Store.
type Ledger struct {
	store    Store
	logger   *slog.Logger
	observer Observer
	newID    func() string
}

// NewLedger creates a facade over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: nopObserver{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) observe(op string, start time.Time, err *error) {
	l.observer.Observe(op, *err, time.Since(start))
}

// =============================================================================
// WRITE PATH
// =============================================================================

// SplitResult describes a recorded split.
type SplitResult struct {
	SplitPlan
	BatchID string
	Memo    string
	Entries []Entry // one per participant other than the payer
}

// RecordSplit splits amount equally between payer and participants and
// records one debt per non-payer participant towards the payer.
func (l *Ledger) RecordSplit(ctx context.Context, chatID ChatID, payer string, participants []string, amount decimal.Decimal, memo string) (res SplitResult, err error) {
	defer l.observe("record_split", time.Now(), &err)

	plan, err := PlanEqualSplit(payer, participants, RoundAmount(amount))
	if err != nil {
		return SplitResult{}, err
	}

	res = SplitResult{SplitPlan: plan, BatchID: l.newID(), Memo: memo}
	for _, debtor := range plan.Debtors() {
		res.Entries = append(res.Entries, Entry{
			Debtor:   debtor,
			Creditor: plan.Payer,
			Amount:   plan.Share,
			Kind:     KindSplit,
			Memo:     memo,
			BatchID:  res.BatchID,
		})
	}

	n, err := l.store.AppendBatch(ctx, chatID, res.Entries)
	if err != nil {
		l.logger.Error("record split failed", "chat_id", chatID, "payer", plan.Payer, "error", err)
		return SplitResult{}, err
	}

	l.logger.Info("split recorded",
		"chat_id", chatID,
		"payer", plan.Payer,
		"total", FormatAmount(plan.Total),
		"share", FormatAmount(plan.Share),
		"participants", len(plan.Participants),
		"written", n,
		"remainder", FormatAmount(plan.Remainder),
	)
	return res, nil
}

// PaybackResult describes a recorded repayment.
type PaybackResult struct {
	BatchID string
	Entry   Entry
}

// RecordPayback records that payer paid amount to the single counterparty.
//
// The row is stored as a new debt with debtor = counterparty and
// creditor = payer. Balances are never netted across directions, so this
// only lowers a displayed balance when the original debt was recorded in
// that same (counterparty, payer) bucket.
func (l *Ledger) RecordPayback(ctx context.Context, chatID ChatID, payer string, counterparties []string, amount decimal.Decimal, memo string) (res PaybackResult, err error) {
	defer l.observe("record_payback", time.Now(), &err)

	payer = NormalizeUsername(payer)
	if payer == "" {
		return PaybackResult{}, &RequestError{Field: "payer", Reason: "must not be empty"}
	}
	switch {
	case len(counterparties) == 0:
		return PaybackResult{}, &RequestError{Field: "counterparties", Reason: "exactly one is required"}
	case len(counterparties) > 1:
		return PaybackResult{}, &RequestError{Field: "counterparties", Reason: "only one counterparty per payback"}
	}
	counterparty := NormalizeUsername(counterparties[0])
	if counterparty == "" {
		return PaybackResult{}, &RequestError{Field: "counterparties", Reason: "contains an empty name"}
	}
	if counterparty == payer {
		return PaybackResult{}, &RequestError{Field: "counterparties", Reason: "cannot pay yourself back"}
	}
	amount = RoundAmount(amount)
	if !amount.IsPositive() {
		return PaybackResult{}, &RequestError{Field: "amount", Reason: "must be positive"}
	}

	res = PaybackResult{
		BatchID: l.newID(),
		Entry: Entry{
			Debtor:   counterparty,
			Creditor: payer,
			Amount:   amount,
			Kind:     KindPayback,
			Memo:     memo,
		},
	}
	res.Entry.BatchID = res.BatchID

	if _, err := l.store.AppendBatch(ctx, chatID, []Entry{res.Entry}); err != nil {
		l.logger.Error("record payback failed", "chat_id", chatID, "payer", payer, "error", err)
		return PaybackResult{}, err
	}

	l.logger.Info("payback recorded",
		"chat_id", chatID,
		"payer", payer,
		"counterparty", counterparty,
		"amount", FormatAmount(amount),
	)
	return res, nil
}

// ResetLedger deletes the chat's transactions and returns how many were removed.
func (l *Ledger) ResetLedger(ctx context.Context, chatID ChatID) (n int, err error) {
	defer l.observe("reset_ledger", time.Now(), &err)

	n, err = l.store.ClearTransactions(ctx, chatID)
	if err != nil {
		l.logger.Error("reset failed", "chat_id", chatID, "error", err)
		return 0, err
	}
	l.logger.Info("ledger reset", "chat_id", chatID, "removed", n)
	return n, nil
}

// =============================================================================
// READ PATH
// =============================================================================

// GetBalances returns pair balances; an empty map when there is no history.
func (l *Ledger) GetBalances(ctx context.Context, chatID ChatID) (b Balances, err error) {
	defer l.observe("get_balances", time.Now(), &err)

	txs, err := l.store.ListTransactions(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return ComputeBalances(txs), nil
}

// Transactions returns the chat's full log ordered by id.
func (l *Ledger) Transactions(ctx context.Context, chatID ChatID) (txs []Transaction, err error) {
	defer l.observe("list_transactions", time.Now(), &err)

	return l.store.ListTransactions(ctx, chatID)
}

// =============================================================================
// PAYMENT IDENTIFIERS
// =============================================================================

// LinkPaymentIdentifier validates number and stores it for username,
// replacing any previous one.
func (l *Ledger) LinkPaymentIdentifier(ctx context.Context, chatID ChatID, username, number string) (err error) {
	defer l.observe("link_payment_identifier", time.Now(), &err)

	username = NormalizeUsername(username)
	if username == "" {
		return &RequestError{Field: "username", Reason: "must not be empty"}
	}
	number, err = card.ValidateNumber(number)
	if err != nil {
		return &IdentifierError{Username: username, Err: err}
	}

	if err := l.store.SetPaymentIdentifier(ctx, chatID, username, number); err != nil {
		l.logger.Error("link card failed", "chat_id", chatID, "username", username, "error", err)
		return err
	}
	l.logger.Info("card linked", "chat_id", chatID, "username", username)
	return nil
}

// LookupPaymentIdentifier returns the user's card or an ErrNotFound error.
func (l *Ledger) LookupPaymentIdentifier(ctx context.Context, chatID ChatID, username string) (pi PaymentIdentifier, err error) {
	defer l.observe("lookup_payment_identifier", time.Now(), &err)

	username = NormalizeUsername(username)
	if username == "" {
		return PaymentIdentifier{}, &RequestError{Field: "username", Reason: "must not be empty"}
	}

	found, err := l.store.GetPaymentIdentifier(ctx, chatID, username)
	if err != nil {
		return PaymentIdentifier{}, err
	}
	if found == nil {
		return PaymentIdentifier{}, ErrNotFound
	}
	return *found, nil
}
