package store

import (
	"context"
	"errors"
	"time"

	"credit-ledger-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrBalanceNotFound = errors.New("no balance row for user")
	ErrEntryNotFound   = errors.New("ledger entry not found")
)

// TxFunc is one atomic unit of work. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the view of the store inside a unit of work. Every Lock* method
// holds its rows exclusively until the unit commits or rolls back, so two
// units touching the same user are serialized.
type Tx interface {
	// LockBalance locks and returns the user's balance row, or ErrBalanceNotFound.
	LockBalance(ctx context.Context, userId string) (*models.Balance, error)
	// EnsureBalance creates a zero balance row when missing, then locks it.
	EnsureBalance(ctx context.Context, userId string, now time.Time) (*models.Balance, error)
	UpdateBalance(ctx context.Context, userId string, credits int64, now time.Time) error

	// LockSpendableEntries returns earn entries with a positive remainder that
	// are not expired at now, ordered expiration date ascending (never-expiring
	// last), then created_at, then seq.
	LockSpendableEntries(ctx context.Context, userId string, now time.Time) ([]models.Entry, error)
	// LockExpiredEntries returns earn entries expired before now that still hold
	// a remainder and have not been processed by a sweep.
	LockExpiredEntries(ctx context.Context, userId string, now time.Time) ([]models.Entry, error)

	UpdateRemaining(ctx context.Context, entryId string, remaining int64, now time.Time) error
	// MarkExpirationProcessed zeroes the remainder and stamps the sweep time.
	MarkExpirationProcessed(ctx context.Context, entryId string, now time.Time) error
	InsertEntry(ctx context.Context, entry *models.Entry) error

	GetEntry(ctx context.Context, userId, entryId string) (*models.Entry, error)
	HasRefundReferencing(ctx context.Context, userId, originalId string) (bool, error)
}

// Store defines the contract that every backend (SQLite, Postgres, memory) must satisfy.
type Store interface {
	// WithTx runs fn in one atomic unit of work: commit on nil, rollback otherwise.
	WithTx(ctx context.Context, fn TxFunc) error

	// --- Balances ---
	GetBalance(ctx context.Context, userId string) (*models.Balance, error)
	SumOutstanding(ctx context.Context, userId string) (int64, error)
	ListUserIds(ctx context.Context) ([]string, error)

	// --- Entries ---
	GetEntry(ctx context.Context, userId, entryId string) (*models.Entry, error)
	ListEntries(ctx context.Context, userId string, filter models.EntryFilter) ([]models.Entry, error)
	ListUsersWithExpiredCredits(ctx context.Context, now time.Time, limit int) ([]string, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
