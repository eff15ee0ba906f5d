package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoRateFound is returned by rate lookups when no point exists on or
// before the query date, or the curve is unknown.
var ErrNoRateFound = errors.New("no rate found for the given date")

// ErrNoActiveTransaction is returned when committing or rolling back a
// transaction id the store does not know.
var ErrNoActiveTransaction = errors.New("no active transaction")

// AccountNotFoundError is returned when an operation references an account
// that was never created.
type AccountNotFoundError struct {
	ID string
}

func (e *AccountNotFoundError) Error() string {
	return "account not found: " + e.ID
}

// RateNotFoundError is returned when setting a point on a rate curve that
// was never created.
type RateNotFoundError struct {
	ID string
}

func (e *RateNotFoundError) Error() string {
	return "rate not found: " + e.ID
}

// UnbalancedJournalError is returned when a journal's raw debits do not equal
// its raw credits.
type UnbalancedJournalError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *UnbalancedJournalError) Error() string {
	return "journal does not balance: debits=" + e.Debits.String() + ", credits=" + e.Credits.String()
}
