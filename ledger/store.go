/*
store.go - Persistence contract for chat ledgers

PURPOSE:
  Defines the interface between the ledger facade and durable storage.
  A Store owns all persisted state of every chat: the debt log and the
  payment identifier table.

ISOLATION:
  Every method takes a ChatID. Implementations keep chats physically or
  logically separate; no method reads or writes across chats. Calls for
  different chats must not wait on each other. Calls for the same chat are
  serialized so a reader never sees half of a batch or half of a reset.

ATOMICITY:
  AppendBatch is all-or-nothing. If any entry is invalid or any insert
  fails, nothing from the batch is visible and the error is returned.
  ClearTransactions and SetPaymentIdentifier are single atomic statements.
  All writes are durable before the method returns.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: One SQLite file per chat (production)
  - ledger/store/memory.go: In-memory (tests, dev)

SEE ALSO:
  - ledger.go: Facade that drives the Store
*/
package ledger

import "context"

// Store persists chat ledgers.
type Store interface {
	// Initialize makes sure the chat's tables exist. Idempotent, never
	// destroys data. Other methods initialize lazily as well.
	Initialize(ctx context.Context, chatID ChatID) error

	// AppendBatch writes all entries atomically and returns how many were written.
	AppendBatch(ctx context.Context, chatID ChatID, entries []Entry) (int, error)

	// ListTransactions returns the full log ordered by id. Read-only.
	ListTransactions(ctx context.Context, chatID ChatID) ([]Transaction, error)

	// ClearTransactions deletes every transaction of the chat and returns how
	// many were removed. Payment identifiers are untouched. Ids are not reused.
	ClearTransactions(ctx context.Context, chatID ChatID) (int, error)

	// SetPaymentIdentifier replaces the user's identifier (upsert).
	SetPaymentIdentifier(ctx context.Context, chatID ChatID, username, number string) error

	// GetPaymentIdentifier returns nil, nil when the user has none.
	GetPaymentIdentifier(ctx context.Context, chatID ChatID, username string) (*PaymentIdentifier, error)

	// Close releases every chat handle.
	Close() error
}
