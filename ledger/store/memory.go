// Package store provides Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/debt-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var _ ledger.Store = (*Memory)(nil)

// Memory keeps every chat in its own lock domain. The registry lock is
// only held to find or create a chat.
type Memory struct {
	mu    sync.RWMutex
	chats map[ledger.ChatID]*chat

	now func() time.Time
}

type chat struct {
	mu     sync.RWMutex
	txs    []ledger.Transaction
	nextID ledger.TransactionID
	cards  map[string]ledger.PaymentIdentifier
}

func NewMemory() *Memory {
	return &Memory{
		chats: make(map[ledger.ChatID]*chat),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) chat(id ledger.ChatID) *chat {
	m.mu.RLock()
	c, ok := m.chats[id]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[id]; ok {
		return c
	}
	c = &chat{nextID: 1, cards: make(map[string]ledger.PaymentIdentifier)}
	m.chats[id] = c
	return c
}

// Initialize creates the chat lazily. Idempotent.
func (m *Memory) Initialize(_ context.Context, chatID ledger.ChatID) error {
	m.chat(chatID)
	return nil
}

// AppendBatch adds entries atomically.
func (m *Memory) AppendBatch(_ context.Context, chatID ledger.ChatID, entries []ledger.Entry) (int, error) {
	// Validate everything first (atomic check)
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}

	c := m.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := m.now()
	for _, e := range entries {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = now
		}
		c.txs = append(c.txs, ledger.Transaction{
			ID:        c.nextID,
			ChatID:    chatID,
			Timestamp: ts,
			Debtor:    e.Debtor,
			Creditor:  e.Creditor,
			Amount:    e.Amount,
			Kind:      e.Kind,
			Memo:      e.Memo,
			BatchID:   e.BatchID,
		})
		c.nextID++
	}
	return len(entries), nil
}

// ListTransactions returns a copy of the log in id order.
func (m *Memory) ListTransactions(_ context.Context, chatID ledger.ChatID) ([]ledger.Transaction, error) {
	c := m.chat(chatID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ledger.Transaction, len(c.txs))
	copy(out, c.txs)
	return out, nil
}

// ClearTransactions drops the log. nextID keeps counting.
func (m *Memory) ClearTransactions(_ context.Context, chatID ledger.ChatID) (int, error) {
	c := m.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.txs)
	c.txs = nil
	return n, nil
}

func (m *Memory) SetPaymentIdentifier(_ context.Context, chatID ledger.ChatID, username, number string) error {
	c := m.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cards[username] = ledger.PaymentIdentifier{
		ChatID:    chatID,
		Username:  username,
		Number:    number,
		UpdatedAt: m.now(),
	}
	return nil
}

func (m *Memory) GetPaymentIdentifier(_ context.Context, chatID ledger.ChatID, username string) (*ledger.PaymentIdentifier, error) {
	c := m.chat(chatID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	pi, ok := c.cards[username]
	if !ok {
		return nil, nil
	}
	return &pi, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
