package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/debt-ledger/ledger"
	"github.com/warp/debt-ledger/ledger/storetest"
)

var entry = storetest.Entry

func newFileStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestStoreContract(t *testing.T) {
	t.Run("files", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) ledger.Store {
			s, _ := newFileStore(t)
			return s
		})
	})
	t.Run("files with one open handle", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) ledger.Store {
			s, _ := newFileStore(t, WithMaxOpenChats(1))
			return s
		})
	})
	t.Run("memory", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) ledger.Store {
			s, err := New(MemoryDir)
			require.NoError(t, err)
			return s
		})
	})
}

func TestStore_FailedInsertRollsBackBatch(t *testing.T) {
	// GIVEN: a chat whose database rejects rows for one debtor
	s, _ := newFileStore(t)
	ctx := context.Background()

	err := s.withChat(7, true, func(db *sql.DB) error {
		_, err := db.Exec(`
			CREATE TRIGGER reject_mallory BEFORE INSERT ON debts
			WHEN NEW.debtor = 'mallory'
			BEGIN
				SELECT RAISE(ABORT, 'rejected');
			END;
		`)
		return err
	})
	require.NoError(t, err)

	// WHEN: a batch fails on its last row
	_, err = s.AppendBatch(ctx, 7, []ledger.Entry{
		entry("bob", "alice", "10"),
		entry("carol", "alice", "10"),
		entry("mallory", "alice", "10"),
	})

	// THEN: it is a storage failure and no row of the batch is visible
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)

	var se *ledger.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ledger.ChatID(7), se.ChatID)
	assert.Equal(t, "append batch", se.Op)

	txs, err := s.ListTransactions(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_TimestampsAreUTC(t *testing.T) {
	s, _ := newFileStore(t)
	fixed := time.Date(2024, 5, 4, 10, 30, 0, 123, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err := s.AppendBatch(context.Background(), 1, []ledger.Entry{entry("bob", "alice", "1")})
	require.NoError(t, err)

	txs, err := s.ListTransactions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, fixed.Equal(txs[0].Timestamp))
}

func TestStore_OneFilePerChat(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, 5))
	_, err := s.AppendBatch(ctx, -100, []ledger.Entry{entry("bob", "alice", "1")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "debts5.db"), s.Path(5))
	for _, name := range []string{"debts5.db", "debts-100.db"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.AppendBatch(ctx, 3, []ledger.Entry{entry("bob", "alice", "30")})
	require.NoError(t, err)
	require.NoError(t, s.SetPaymentIdentifier(ctx, 3, "alice", "4539148803436467"))
	require.NoError(t, s.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	txs, err := reopened.ListTransactions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "bob", txs[0].Debtor)

	pi, err := reopened.GetPaymentIdentifier(ctx, 3, "alice")
	require.NoError(t, err)
	require.NotNil(t, pi)
}

func TestStore_ManyChatsStayWithinOpenLimit(t *testing.T) {
	// GIVEN: a store that keeps at most 4 idle chat databases open
	const limit = 4
	const chats = 60
	s, _ := newFileStore(t, WithMaxOpenChats(limit))
	ctx := context.Background()

	// WHEN: far more chats than the limit are written and read
	for i := 0; i < chats; i++ {
		chatID := ledger.ChatID(i)
		_, err := s.AppendBatch(ctx, chatID, []ledger.Entry{entry("bob", "alice", fmt.Sprintf("%d", i+1))})
		require.NoError(t, err, "chat %d", i)
		require.NoError(t, s.SetPaymentIdentifier(ctx, chatID, "alice", "4539148803436467"))
		_, err = s.ListTransactions(ctx, chatID)
		require.NoError(t, err, "chat %d", i)
		assert.LessOrEqual(t, s.openCount(), limit)
	}

	// THEN: every chat still works after its handle was evicted and reopened
	for i := 0; i < chats; i++ {
		chatID := ledger.ChatID(i)
		_, err := s.AppendBatch(ctx, chatID, []ledger.Entry{entry("carol", "alice", "1")})
		require.NoError(t, err, "chat %d", i)

		txs, err := s.ListTransactions(ctx, chatID)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, fmt.Sprintf("%d.00", i+1), ledger.FormatAmount(txs[0].Amount))
		assert.Equal(t, ledger.TransactionID(2), txs[1].ID)

		pi, err := s.GetPaymentIdentifier(ctx, chatID, "alice")
		require.NoError(t, err)
		assert.NotNil(t, pi)
	}
	assert.LessOrEqual(t, s.openCount(), limit)

	s.mu.Lock()
	assert.LessOrEqual(t, len(s.chats), limit)
	s.mu.Unlock()
}

func TestStore_ConcurrentChatsWithEviction(t *testing.T) {
	s, _ := newFileStore(t, WithMaxOpenChats(2))
	ctx := context.Background()

	const chats = 8
	const rounds = 10

	var wg sync.WaitGroup
	for i := 0; i < chats; i++ {
		wg.Add(1)
		go func(chatID ledger.ChatID) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, err := s.AppendBatch(ctx, chatID, []ledger.Entry{entry("bob", "alice", "1"), entry("carol", "alice", "1")})
				assert.NoError(t, err)
				txs, err := s.ListTransactions(ctx, chatID)
				assert.NoError(t, err)
				assert.Zero(t, len(txs)%2)
			}
		}(ledger.ChatID(i))
	}
	wg.Wait()

	for i := 0; i < chats; i++ {
		txs, err := s.ListTransactions(ctx, ledger.ChatID(i))
		require.NoError(t, err)
		assert.Len(t, txs, rounds*2)
	}
	assert.LessOrEqual(t, s.openCount(), 2)
}

func TestStore_MemoryModeNeverEvicts(t *testing.T) {
	s, err := New(MemoryDir, WithMaxOpenChats(1))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendBatch(ctx, ledger.ChatID(i), []ledger.Entry{entry("bob", "alice", "1")})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		txs, err := s.ListTransactions(ctx, ledger.ChatID(i))
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	}
	assert.Equal(t, 5, s.openCount())
}

func TestStore_CloseDuringOpenDoesNotLeak(t *testing.T) {
	// GIVEN: Close runs while a chat database is being opened
	s, _ := newFileStore(t)
	closed := make(chan error, 1)
	var opened *sql.DB

	s.openDB = func(chatID ledger.ChatID) (*sql.DB, error) {
		go func() { closed <- s.Close() }()
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.closed
		}, time.Second, time.Millisecond)

		db, err := s.open(chatID)
		opened = db
		return db, err
	}

	// WHEN: the open finishes after the store was closed
	_, err := s.ListTransactions(context.Background(), 1)

	// THEN: the call fails and the fresh handle is closed, not kept
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.ErrorIs(t, err, errClosed)
	require.NoError(t, <-closed)
	require.NotNil(t, opened)
	assert.Error(t, opened.Ping())
	assert.Zero(t, s.openCount())
}

func TestStore_CorruptCardTimestamp(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetPaymentIdentifier(ctx, 1, "alice", "4539148803436467"))
	err := s.withChat(1, true, func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE cards SET updated_at = 'yesterday' WHERE username = 'alice'`)
		return err
	})
	require.NoError(t, err)

	pi, err := s.GetPaymentIdentifier(ctx, 1, "alice")
	assert.Nil(t, pi)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.Contains(t, err.Error(), "updated_at")
}

func TestStore_Closed(t *testing.T) {
	s, err := New(MemoryDir)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background(), 1))
	require.NoError(t, s.Close())

	_, err = s.ListTransactions(context.Background(), 1)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.ErrorIs(t, err, errClosed)
}
