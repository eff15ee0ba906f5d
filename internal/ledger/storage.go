package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/value"
)

// Side distinguishes debit from credit postings.
type Side int

const (
	Debit Side = iota
	Credit
)

func (s Side) String() string {
	if s == Debit {
		return "DEBIT"
	}
	return "CREDIT"
}

// Account is one chart-of-accounts entry.
type Account struct {
	ID   string
	Type value.AccountType
}

// EntryCommand is one debit or credit line of a journal being created. The
// amount is the raw, unsigned business amount; the store applies the sign
// convention of the target account.
type EntryCommand struct {
	Side      Side
	AccountID string
	Amount    decimal.Decimal
}

// CreateJournalCommand describes a balanced journal to record. Every posting
// carries the journal's dimensions.
type CreateJournalCommand struct {
	Date        value.Date
	Description string
	Amount      decimal.Decimal
	Dimensions  map[string]value.Value
	Entries     []EntryCommand
}

// Journal is the stored header of one business event.
type Journal struct {
	ID          uuid.UUID
	Sequence    uint64
	Date        value.Date
	Description string
	Amount      decimal.Decimal
	Dimensions  map[string]value.Value
	CreatedAt   time.Time
}

// TxID identifies an open snapshot transaction.
type TxID uint64

// Backend is the storage contract shared by all ledger engines. Every method
// is safe for concurrent use.
type Backend interface {
	// CreateAccount is an idempotent upsert; re-creating an account
	// overwrites its type and keeps its postings.
	CreateAccount(account Account) error
	// CreateRate creates an empty rate curve, resetting any existing one.
	CreateRate(id string) error
	// SetRate inserts or overwrites the (date, value) point on a curve.
	SetRate(id string, date value.Date, rate decimal.Decimal) error
	// GetRate returns the curve value at the greatest date <= the query
	// date, or ErrNoRateFound.
	GetRate(id string, date value.Date) (decimal.Decimal, error)
	// CreateJournal records a journal and its postings atomically, assigning
	// a fresh id and the next sequence number.
	CreateJournal(cmd CreateJournalCommand) error
	// GetBalance sums stored signed amounts for postings on the account with
	// posting date <= date, optionally restricted to one dimension.
	GetBalance(account string, date value.Date, dim *value.Dimension) (decimal.Decimal, error)
	// GetStatement lists postings in [from, to] in (date, insert) order with
	// a running balance seeded from the balance the day before from.
	GetStatement(account string, from, to value.Date, dim *value.Dimension) (value.Statement, error)
	// GetDimensionValues returns the distinct values seen on the account for
	// a dimension key within [from, to].
	GetDimensionValues(account, key string, from, to value.Date) ([]value.Value, error)
	// ListAccounts returns all accounts in id order.
	ListAccounts() []Account

	// BeginTransaction snapshots the current state; CommitTransaction drops
	// the snapshot; RollbackTransaction restores it.
	BeginTransaction() (TxID, error)
	CommitTransaction(tx TxID) error
	RollbackTransaction(tx TxID) error
}
