/*
Package storetest is the behavioral contract every ledger.Store must meet.

USAGE (from an implementation's tests):

	func TestContract(t *testing.T) {
	    storetest.Run(t, func(t *testing.T) ledger.Store {
	        return NewMemory()
	    })
	}

Each subtest gets a fresh store from the factory. Factories should
register their own cleanup; Run also closes the store.

COVERED:
  - AppendBatch is all-or-nothing and validates entries
  - Ids start at 1, increase, and keep counting across a clear
  - Stored rows round-trip (memo, kind, batch id, explicit timestamps)
  - Results are copies the caller may modify
  - Card upsert/get, and clear leaves cards alone
  - Chats are isolated
  - Concurrent batches are never observed half-applied
*/
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/debt-ledger/ledger"
)

const (
	cardA = "4539148803436467"
	cardB = "4111111111111111"
)

// Entry builds a split entry for tests.
func Entry(debtor, creditor, amount string) ledger.Entry {
	return ledger.Entry{
		Debtor:   debtor,
		Creditor: creditor,
		Amount:   decimal.RequireFromString(amount),
		Kind:     ledger.KindSplit,
	}
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"AppendAndList", testAppendAndList},
		{"ExplicitTimestamp", testExplicitTimestamp},
		{"EmptyChat", testEmptyChat},
		{"InitializeIsIdempotent", testInitializeIsIdempotent},
		{"InvalidEntryWritesNothing", testInvalidEntryWritesNothing},
		{"SubCentAmountRejected", testSubCentAmountRejected},
		{"ListReturnsCopy", testListReturnsCopy},
		{"IDsKeepCountingAfterClear", testIDsKeepCountingAfterClear},
		{"ClearKeepsCards", testClearKeepsCards},
		{"PaymentIdentifierUpsert", testPaymentIdentifierUpsert},
		{"ChatsAreIsolated", testChatsAreIsolated},
		{"ConcurrentBatches", testConcurrentBatches},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testAppendAndList(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	e1 := Entry("bob", "alice", "30.00")
	e1.Memo = "dinner"
	e1.BatchID = "b-1"
	e2 := Entry("carol", "alice", "12.50")
	e2.Kind = ledger.KindPayback

	n, err := s.AppendBatch(ctx, 42, []ledger.Entry{e1, e2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	txs, err := s.ListTransactions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, ledger.TransactionID(1), txs[0].ID)
	assert.Equal(t, ledger.TransactionID(2), txs[1].ID)
	assert.Equal(t, ledger.ChatID(42), txs[0].ChatID)
	assert.Equal(t, "bob", txs[0].Debtor)
	assert.Equal(t, "alice", txs[0].Creditor)
	assert.Equal(t, "30.00", ledger.FormatAmount(txs[0].Amount))
	assert.Equal(t, "dinner", txs[0].Memo)
	assert.Equal(t, "b-1", txs[0].BatchID)
	assert.Equal(t, ledger.KindSplit, txs[0].Kind)
	assert.False(t, txs[0].Timestamp.IsZero())

	assert.Equal(t, "12.50", ledger.FormatAmount(txs[1].Amount))
	assert.Equal(t, ledger.KindPayback, txs[1].Kind)
}

func testExplicitTimestamp(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	at := time.Date(2023, 12, 31, 23, 59, 0, 500, time.UTC)

	e := Entry("bob", "alice", "1")
	e.Timestamp = at
	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{e})
	require.NoError(t, err)

	txs, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, at.Equal(txs[0].Timestamp), "got %v", txs[0].Timestamp)
}

func testEmptyChat(t *testing.T, s ledger.Store) {
	txs, err := s.ListTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func testInitializeIsIdempotent(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, 5))
	_, err := s.AppendBatch(ctx, 5, []ledger.Entry{Entry("bob", "alice", "1")})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx, 5))

	txs, err := s.ListTransactions(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func testInvalidEntryWritesNothing(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	bad := []ledger.Entry{
		Entry("", "alice", "10"),
		Entry("bob", "", "10"),
		Entry("bob", "alice", "0"),
		Entry("bob", "alice", "-1"),
	}
	for _, e := range bad {
		_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("carol", "alice", "10"), e})
		assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
		assert.NotErrorIs(t, err, ledger.ErrStorageFailure)
	}

	txs, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func testSubCentAmountRejected(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "0.001")})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	// Trailing zeros are still whole cents.
	_, err = s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "1.500")})
	require.NoError(t, err)

	txs, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "1.50", ledger.FormatAmount(txs[0].Amount))
}

func testListReturnsCopy(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "5")})
	require.NoError(t, err)
	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", cardA))

	txs, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	txs[0].Debtor = "mallory"

	pi, err := s.GetPaymentIdentifier(ctx, 1, "alice")
	require.NoError(t, err)
	require.NotNil(t, pi)
	pi.Number = cardB

	again, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", again[0].Debtor)

	pi, err = s.GetPaymentIdentifier(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, cardA, pi.Number)
}

func testIDsKeepCountingAfterClear(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "1"), Entry("bob", "alice", "2")})
	require.NoError(t, err)

	n, err := s.ClearTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ClearTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "3")})
	require.NoError(t, err)

	txs, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TransactionID(3), txs[0].ID)
}

func testClearKeepsCards(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", cardA))
	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "1")})
	require.NoError(t, err)

	_, err = s.ClearTransactions(ctx, 1)
	require.NoError(t, err)

	pi, err := s.GetPaymentIdentifier(ctx, 1, "alice")
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Equal(t, cardA, pi.Number)
}

func testPaymentIdentifierUpsert(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	pi, err := s.GetPaymentIdentifier(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Nil(t, pi)

	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", cardA))
	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", cardB))

	pi, err = s.GetPaymentIdentifier(ctx, 1, "alice")
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Equal(t, ledger.ChatID(1), pi.ChatID)
	assert.Equal(t, "alice", pi.Username)
	assert.Equal(t, cardB, pi.Number)
	assert.False(t, pi.UpdatedAt.IsZero())
}

func testChatsAreIsolated(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.AppendBatch(ctx, 1, []ledger.Entry{Entry("bob", "alice", "1")})
	require.NoError(t, err)
	_, err = s.AppendBatch(ctx, -2, []ledger.Entry{Entry("dave", "carol", "2"), Entry("dave", "carol", "3")})
	require.NoError(t, err)
	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", cardA))

	one, err := s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	two, err := s.ListTransactions(ctx, -2)
	require.NoError(t, err)
	assert.Len(t, one, 1)
	require.Len(t, two, 2)
	assert.Equal(t, ledger.TransactionID(1), two[0].ID)

	pi, err := s.GetPaymentIdentifier(ctx, -2, "alice")
	require.NoError(t, err)
	assert.Nil(t, pi)

	_, err = s.ClearTransactions(ctx, -2)
	require.NoError(t, err)
	one, err = s.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func testConcurrentBatches(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	const writers = 6
	const batches = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(chatID ledger.ChatID) {
			defer wg.Done()
			for i := 0; i < batches; i++ {
				_, err := s.AppendBatch(ctx, chatID, []ledger.Entry{
					Entry("bob", "alice", "1"),
					Entry("carol", "alice", "1"),
				})
				assert.NoError(t, err)

				txs, err := s.ListTransactions(ctx, chatID)
				assert.NoError(t, err)
				assert.Zero(t, len(txs)%2, "a batch is never half visible")
			}
		}(ledger.ChatID(w % 2))
	}
	wg.Wait()

	for _, chatID := range []ledger.ChatID{0, 1} {
		txs, err := s.ListTransactions(ctx, chatID)
		require.NoError(t, err)
		require.Len(t, txs, writers/2*batches*2)
		for i, tx := range txs {
			assert.Equal(t, ledger.TransactionID(i+1), tx.ID)
		}
	}
}
