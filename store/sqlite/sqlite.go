/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Durable per-chat storage. Every chat gets its own database file
  (debts<chat_id>.db) inside the data directory, so chats share no tables,
  no locks and no write-ahead log.

KEY TABLES (per chat file):
  debts: Append-only debt log (id AUTOINCREMENT, never reused after reset)
  cards: One card number per username (upsert)

CHAT HANDLES:
  Every operation goes through withChat, which pins the chat's handle
  (*sql.DB, opened and migrated on first use), takes the chat lock, runs
  the work and releases both on every exit path. Writes take the lock
  exclusively, reads share it, so a reader never observes half of a batch
  or a reset. Different chats never touch each other's lock.

  At most WithMaxOpenChats idle handles (default 64) stay open; the least
  recently used idle chat is closed and reopened on its next call, so the
  number of chats is not bounded by file descriptors.

DURABILITY:
  Files are opened in WAL mode with synchronous=FULL: a committed batch
  survives a crash that happens after the call returns.

IN-MEMORY MODE:
  New(":memory:") keeps each chat in its own private in-memory database,
  limited to one connection so the pool never opens a second, empty one.
  Handles are never evicted in this mode.

USAGE:
  store, err := sqlite.New("./data")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store)

SEE ALSO:
  - ledger/store.go: The contract implemented here
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/debt-ledger/ledger"
)

// MemoryDir selects in-memory databases instead of files.
const MemoryDir = ":memory:"

// FilePrefix is prepended to the chat id to name a chat's database file.
const FilePrefix = "debts"

var _ ledger.Store = (*Store)(nil)

var errClosed = errors.New("store is closed")

// DefaultMaxOpenChats bounds how many chat databases stay open at once.
const DefaultMaxOpenChats = 64

// Option configures a Store.
type Option func(*Store)

// WithMaxOpenChats sets how many idle chat databases are kept open.
// Values below 1 keep every database open. Ignored in memory mode, where
// closing a database would drop its data.
func WithMaxOpenChats(n int) Option {
	return func(s *Store) { s.maxOpen = n }
}

// Store implements ledger.Store with one SQLite database per chat.
type Store struct {
	dir     string
	maxOpen int

	// mu guards chats, lru, closed, and every chatDB's refs, elem and
	// the clearing of db.
	mu     sync.Mutex
	chats  map[ledger.ChatID]*chatDB
	lru    *list.List // open handles, most recently used at the front
	closed bool

	now    func() time.Time
	openDB func(chatID ledger.ChatID) (*sql.DB, error)
}

type chatDB struct {
	id     ledger.ChatID
	mu     sync.RWMutex // chat lock, held for the whole operation
	openMu sync.Mutex   // serializes opening
	db     *sql.DB
	refs   int
	elem   *list.Element
}

// New creates a store rooted at dir. Use MemoryDir for in-memory databases.
func New(dir string, opts ...Option) (*Store, error) {
	if dir != MemoryDir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	s := &Store{
		dir:     dir,
		maxOpen: DefaultMaxOpenChats,
		chats:   make(map[ledger.ChatID]*chatDB),
		lru:     list.New(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if dir == MemoryDir {
		s.maxOpen = 0
	}
	s.openDB = s.open
	return s, nil
}

// Path returns the database file of a chat.
func (s *Store) Path(chatID ledger.ChatID) string {
	if s.dir == MemoryDir {
		return MemoryDir
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s%d.db", FilePrefix, chatID))
}

// Close waits for in-flight operations and closes every open chat database.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	chats := make([]*chatDB, 0, len(s.chats))
	for _, c := range s.chats {
		chats = append(chats, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range chats {
		c.mu.Lock()
		c.openMu.Lock()
		s.mu.Lock()
		if err := s.closeLocked(c); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", c.id, err))
		}
		s.mu.Unlock()
		c.openMu.Unlock()
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// =============================================================================
// CHAT HANDLES
// =============================================================================

// acquire pins the chat's handle, opening it if needed. Every successful
// acquire must be paired with release.
func (s *Store) acquire(chatID ledger.ChatID) (*chatDB, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	c, ok := s.chats[chatID]
	if !ok {
		c = &chatDB{id: chatID}
		s.chats[chatID] = c
	}
	c.refs++
	if c.elem != nil {
		s.lru.MoveToFront(c.elem)
	}
	s.mu.Unlock()

	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.db != nil {
		return c, nil
	}

	db, err := s.openDB(chatID)
	if err != nil {
		s.release(c)
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		// Close ran while the file was being opened.
		c.refs--
		s.mu.Unlock()
		db.Close()
		return nil, errClosed
	}
	c.db = db
	c.elem = s.lru.PushFront(c)
	s.evictLocked()
	s.mu.Unlock()
	return c, nil
}

// release unpins the handle and closes idle handles over the limit.
func (s *Store) release(c *chatDB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.refs--
	if c.refs == 0 && c.db == nil && s.chats[c.id] == c {
		delete(s.chats, c.id)
	}
	s.evictLocked()
}

// evictLocked closes least recently used idle handles until at most
// maxOpen remain. Pinned handles are skipped, so the limit can be exceeded
// while many chats are busy at once.
func (s *Store) evictLocked() {
	if s.maxOpen < 1 {
		return
	}
	for e := s.lru.Back(); e != nil && s.lru.Len() > s.maxOpen; {
		prev := e.Prev()
		if c := e.Value.(*chatDB); c.refs == 0 {
			// An idle chat reopens on next use; a close error has no caller.
			_ = s.closeLocked(c)
			delete(s.chats, c.id)
		}
		e = prev
	}
}

func (s *Store) closeLocked(c *chatDB) error {
	if c.elem != nil {
		s.lru.Remove(c.elem)
		c.elem = nil
	}
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// openCount returns the number of open chat databases.
func (s *Store) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *Store) open(chatID ledger.ChatID) (*sql.DB, error) {
	dsn := MemoryDir
	if s.dir != MemoryDir {
		dsn = "file:" + s.Path(chatID) + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if s.dir == MemoryDir {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// withChat runs fn against the chat's database under the chat lock. The
// handle is pinned for the duration and released on every exit path.
func (s *Store) withChat(chatID ledger.ChatID, write bool, fn func(db *sql.DB) error) error {
	c, err := s.acquire(chatID)
	if err != nil {
		return err
	}
	defer s.release(c)

	if write {
		c.mu.Lock()
		defer c.mu.Unlock()
	} else {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	if c.db == nil {
		return errClosed
	}
	return fn(c.db)
}

// migrate creates the chat schema.
func migrate(db *sql.DB) error {
	schema := `
	-- Debt log (append-only; only bulk-cleared by reset)
	CREATE TABLE IF NOT EXISTS debts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		oper_date TEXT NOT NULL,
		debtor TEXT NOT NULL,
		creditor TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'split',
		memo TEXT NOT NULL DEFAULT '',
		batch_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_debts_pair
		ON debts(debtor, creditor);

	-- Payment cards, one per username
	CREATE TABLE IF NOT EXISTS cards (
		username TEXT PRIMARY KEY,
		card_number TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

// Initialize opens and migrates the chat database. Idempotent.
func (s *Store) Initialize(_ context.Context, chatID ledger.ChatID) error {
	err := s.withChat(chatID, false, func(*sql.DB) error { return nil })
	return ledger.NewStorageError("initialize", chatID, err)
}

// AppendBatch inserts all entries in one SQL transaction.
func (s *Store) AppendBatch(ctx context.Context, chatID ledger.ChatID, entries []ledger.Entry) (int, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}

	err := s.withChat(chatID, true, func(db *sql.DB) error {
		sqlTx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer sqlTx.Rollback()

		stmt, err := sqlTx.PrepareContext(ctx, `
			INSERT INTO debts (oper_date, debtor, creditor, amount, kind, memo, batch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := s.now()
		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = now
			}
			_, err := stmt.ExecContext(ctx,
				ts.UTC().Format(time.RFC3339Nano),
				e.Debtor,
				e.Creditor,
				e.Amount.String(),
				string(e.Kind),
				e.Memo,
				e.BatchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert debt: %w", err)
			}
		}

		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, ledger.NewStorageError("append batch", chatID, err)
	}
	return len(entries), nil
}

// ListTransactions returns the chat log ordered by id.
func (s *Store) ListTransactions(ctx context.Context, chatID ledger.ChatID) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	err := s.withChat(chatID, false, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, oper_date, debtor, creditor, amount, kind, memo, batch_id
			FROM debts
			ORDER BY id ASC
		`)
		if err != nil {
			return fmt.Errorf("failed to query debts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			tx, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			tx.ChatID = chatID
			txs = append(txs, tx)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, ledger.NewStorageError("list transactions", chatID, err)
	}
	return txs, nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx       ledger.Transaction
		operDate string
		amount   string
		kind     string
	)

	err := rows.Scan(&tx.ID, &operDate, &tx.Debtor, &tx.Creditor, &amount, &kind, &tx.Memo, &tx.BatchID)
	if err != nil {
		return tx, fmt.Errorf("failed to scan debt: %w", err)
	}

	tx.Timestamp, err = time.Parse(time.RFC3339Nano, operDate)
	if err != nil {
		return tx, fmt.Errorf("debt %d: bad oper_date %q: %w", tx.ID, operDate, err)
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("debt %d: bad amount %q: %w", tx.ID, amount, err)
	}
	tx.Kind = ledger.Kind(kind)
	return tx, nil
}

// ClearTransactions deletes the chat log in one statement.
func (s *Store) ClearTransactions(ctx context.Context, chatID ledger.ChatID) (int, error) {
	var n int64
	err := s.withChat(chatID, true, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM debts")
		if err != nil {
			return fmt.Errorf("failed to delete debts: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, ledger.NewStorageError("clear transactions", chatID, err)
	}
	return int(n), nil
}

// =============================================================================
// PAYMENT CARDS
// =============================================================================

// SetPaymentIdentifier upserts the user's card.
func (s *Store) SetPaymentIdentifier(ctx context.Context, chatID ledger.ChatID, username, number string) error {
	err := s.withChat(chatID, true, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO cards (username, card_number, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(username) DO UPDATE SET
				card_number = excluded.card_number,
				updated_at = excluded.updated_at
		`, username, number, s.now().Format(time.RFC3339Nano))
		return err
	})
	return ledger.NewStorageError("set payment identifier", chatID, err)
}

// GetPaymentIdentifier returns nil, nil when the user has no card.
func (s *Store) GetPaymentIdentifier(ctx context.Context, chatID ledger.ChatID, username string) (*ledger.PaymentIdentifier, error) {
	var (
		pi        *ledger.PaymentIdentifier
		number    string
		updatedAt string
	)
	err := s.withChat(chatID, false, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx,
			"SELECT card_number, updated_at FROM cards WHERE username = ?",
			username,
		).Scan(&number, &updatedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		ts, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return fmt.Errorf("card of %s: bad updated_at %q: %w", username, updatedAt, err)
		}
		pi = &ledger.PaymentIdentifier{ChatID: chatID, Username: username, Number: number, UpdatedAt: ts}
		return nil
	})
	if err != nil {
		return nil, ledger.NewStorageError("get payment identifier", chatID, err)
	}
	return pi, nil
}
