package value

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Monetary division must not silently lose precision at the default 16
	// digits; 28 matches the precision guarantee of the storage layer.
	if decimal.DivisionPrecision < 28 {
		decimal.DivisionPrecision = 28
	}
}

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// IsDebitNormal returns true if the account type normally carries a debit
// balance (a debit posting increases it).
func (t AccountType) IsDebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Value is the tagged sum type flowing through the evaluator, executor and
// storage. Concrete types: Null, Bool, Int, Money, Percentage, String, Date,
// List, Map, AccountID, Dimension, Statement, TrialBalance.
type Value interface {
	fmt.Stringer
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit signed integer value.
type Int int64

// Money is an exact decimal monetary amount.
type Money struct{ decimal.Decimal }

// Percentage is a decimal used as a multiplier. It is a distinct tag from
// Money so rates never mix silently into monetary arithmetic.
type Percentage struct{ decimal.Decimal }

// String is an immutable text value.
type String string

// List is an ordered sequence of values.
type List []Value

// Map is a string-keyed collection of values.
type Map map[string]Value

// AccountID references an account by id.
type AccountID string

// Dimension is a name/value tag used to partition balances.
type Dimension struct {
	Name  string
	Value Value
}

// StatementTxn is one line of an account statement: a posting plus the
// running balance after it.
type StatementTxn struct {
	JournalID   uuid.UUID
	Date        Date
	Description string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
}

// Statement is an ordered listing of postings with running balances.
type Statement []StatementTxn

// TrialBalanceItem is one account's balance within a trial balance.
type TrialBalanceItem struct {
	AccountID   string
	AccountType AccountType
	Balance     decimal.Decimal
}

// TrialBalance is a snapshot of every account's balance at a date.
type TrialBalance []TrialBalanceItem

func (Null) isValue()         {}
func (Bool) isValue()         {}
func (Int) isValue()          {}
func (Money) isValue()        {}
func (Percentage) isValue()   {}
func (String) isValue()       {}
func (Date) isValue()         {}
func (List) isValue()         {}
func (Map) isValue()          {}
func (AccountID) isValue()    {}
func (Dimension) isValue()    {}
func (Statement) isValue()    {}
func (TrialBalance) isValue() {}

func (Null) String() string { return "null" }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (i Int) String() string { return fmt.Sprintf("%d", int64(i)) }

func (s String) String() string { return string(s) }

func (a AccountID) String() string { return string(a) }

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Map) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + m[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (d Dimension) String() string { return d.Name + "=" + d.Value.String() }

// IsNull reports whether v is absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// MoneyFromInt widens an integer to an exact Money amount.
func MoneyFromInt(i int64) Money {
	return Money{decimal.NewFromInt(i)}
}

// Equal reports deep equality between two values. Values of different
// concrete types are never equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		return IsNull(b)
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Money:
		bv, ok := b.(Money)
		return ok && av.Decimal.Equal(bv.Decimal)
	case Percentage:
		bv, ok := b.(Percentage)
		return ok && av.Decimal.Equal(bv.Decimal)
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && av == bv
	case AccountID:
		bv, ok := b.(AccountID)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	case Dimension:
		bv, ok := b.(Dimension)
		return ok && av.Name == bv.Name && Equal(av.Value, bv.Value)
	case Statement:
		bv, ok := b.(Statement)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].JournalID != bv[i].JournalID || av[i].Date != bv[i].Date ||
				av[i].Description != bv[i].Description ||
				!av[i].Amount.Equal(bv[i].Amount) || !av[i].Balance.Equal(bv[i].Balance) {
				return false
			}
		}
		return true
	case TrialBalance:
		bv, ok := b.(TrialBalance)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].AccountID != bv[i].AccountID || av[i].AccountType != bv[i].AccountType ||
				!av[i].Balance.Equal(bv[i].Balance) {
				return false
			}
		}
		return true
	}
	return false
}

// Key returns a canonical encoding of v usable as a map key, and whether v
// belongs to the hashable subset (Null, Bool, Int, Money, Percentage,
// String, Date, AccountID).
func Key(v Value) (string, bool) {
	switch t := v.(type) {
	case Null:
		return "null:", true
	case Bool:
		return "bool:" + t.String(), true
	case Int:
		return "int:" + t.String(), true
	case Money:
		return "money:" + t.Decimal.String(), true
	case Percentage:
		return "pct:" + t.Decimal.String(), true
	case String:
		return "str:" + string(t), true
	case Date:
		return "date:" + t.String(), true
	case AccountID:
		return "acct:" + string(t), true
	}
	return "", false
}

// Contains reports whether list holds an element deeply equal to v.
func (l List) Contains(v Value) bool {
	for _, e := range l {
		if Equal(e, v) {
			return true
		}
	}
	return false
}
