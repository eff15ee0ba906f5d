// Package functions holds the built-in FQL function library. Every function
// validates its own arity and argument types and reads through the storage
// backend it was constructed with.
package functions

import (
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/eval"
	"github.com/HMB-research/fql/internal/ledger"
	"github.com/HMB-research/fql/internal/value"
)

// Register installs the complete built-in library into a registry.
func Register(registry *eval.Registry, storage ledger.Backend) {
	registry.Register("balance", &Balance{storage: storage})
	registry.Register("statement", &Statement{storage: storage})
	registry.Register("trial_balance", &TrialBalance{storage: storage})
	registry.Register("income_statement", &IncomeStatement{storage: storage})
	registry.Register("account_count", &AccountCount{storage: storage})
	registry.Register("fx_rate", &FxRate{storage: storage})
	registry.Register("convert", &Convert{storage: storage})
	registry.Register("round", eval.FunctionFunc(roundFunc))
	registry.Register("abs", eval.FunctionFunc(absFunc))
	registry.Register("min", eval.FunctionFunc(minFunc))
	registry.Register("max", eval.FunctionFunc(maxFunc))
}

func accountArg(args []value.Value, i int, name string) (string, error) {
	if i < len(args) {
		if id, ok := args[i].(value.AccountID); ok {
			return string(id), nil
		}
	}
	return "", &eval.InvalidArgumentError{Name: name}
}

func dateArg(args []value.Value, i int, name string) (value.Date, error) {
	if i < len(args) {
		if d, ok := args[i].(value.Date); ok {
			return d, nil
		}
	}
	return value.Date{}, &eval.InvalidArgumentError{Name: name}
}

func stringArg(args []value.Value, i int, name string) (string, error) {
	if i < len(args) {
		if s, ok := args[i].(value.String); ok {
			return string(s), nil
		}
	}
	return "", &eval.InvalidArgumentError{Name: name}
}

// dimensionArg reads an optional trailing dimension argument.
func dimensionArg(args []value.Value, i int, name string) (*value.Dimension, error) {
	if i >= len(args) {
		return nil, nil
	}
	if dim, ok := args[i].(value.Dimension); ok {
		return &dim, nil
	}
	return nil, &eval.InvalidArgumentError{Name: name}
}

// amountArg accepts Int or Money and widens to an exact decimal.
func amountArg(args []value.Value, i int, name string) (decimal.Decimal, error) {
	if i < len(args) {
		switch v := args[i].(type) {
		case value.Money:
			return v.Decimal, nil
		case value.Int:
			return decimal.NewFromInt(int64(v)), nil
		}
	}
	return decimal.Decimal{}, &eval.InvalidArgumentError{Name: name}
}

// Balance reads an account balance as of a date, optionally filtered by a
// dimension.
type Balance struct {
	storage ledger.Backend
}

// Call implements balance(@account, date, [dim=value]).
func (f *Balance) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, &eval.InvalidArgumentCountError{Name: "balance"}
	}
	account, err := accountArg(args, 0, "account_id")
	if err != nil {
		return nil, err
	}
	date, err := dateArg(args, 1, "effective_date")
	if err != nil {
		return nil, err
	}
	dim, err := dimensionArg(args, 2, "dimension")
	if err != nil {
		return nil, err
	}
	balance, err := f.storage.GetBalance(account, date, dim)
	if err != nil {
		return nil, err
	}
	return value.Money{Decimal: balance}, nil
}

// Statement lists an account's postings in a date range with running
// balances.
type Statement struct {
	storage ledger.Backend
}

// Call implements statement(@account, from_date, to_date, [dim=value]).
func (f *Statement) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, &eval.InvalidArgumentCountError{Name: "statement"}
	}
	account, err := accountArg(args, 0, "account_id")
	if err != nil {
		return nil, err
	}
	from, err := dateArg(args, 1, "from")
	if err != nil {
		return nil, err
	}
	to, err := dateArg(args, 2, "to")
	if err != nil {
		return nil, err
	}
	dim, err := dimensionArg(args, 3, "dimension")
	if err != nil {
		return nil, err
	}
	statement, err := f.storage.GetStatement(account, from, to, dim)
	if err != nil {
		return nil, err
	}
	return statement, nil
}

// TrialBalance snapshots every account's balance at a date.
type TrialBalance struct {
	storage ledger.Backend
}

// Call implements trial_balance(date).
func (f *TrialBalance) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, &eval.InvalidArgumentCountError{Name: "trial_balance"}
	}
	date, err := dateArg(args, 0, "date")
	if err != nil {
		return nil, err
	}
	accounts := f.storage.ListAccounts()
	items := make(value.TrialBalance, 0, len(accounts))
	for _, account := range accounts {
		balance, err := f.storage.GetBalance(account.ID, date, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, value.TrialBalanceItem{
			AccountID:   account.ID,
			AccountType: account.Type,
			Balance:     balance,
		})
	}
	return items, nil
}

// IncomeStatement reports the change in income and expense balances over a
// period plus a synthetic NET_INCOME line.
type IncomeStatement struct {
	storage ledger.Backend
}

// Call implements income_statement(from_date, to_date).
func (f *IncomeStatement) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, &eval.InvalidArgumentCountError{Name: "income_statement"}
	}
	from, err := dateArg(args, 0, "from_date")
	if err != nil {
		return nil, err
	}
	to, err := dateArg(args, 1, "to_date")
	if err != nil {
		return nil, err
	}

	totalIncome, totalExpenses := decimal.Zero, decimal.Zero
	var items value.TrialBalance
	for _, account := range f.storage.ListAccounts() {
		if account.Type != value.AccountTypeIncome && account.Type != value.AccountTypeExpense {
			continue
		}
		balFrom, err := f.storage.GetBalance(account.ID, from, nil)
		if err != nil {
			return nil, err
		}
		balTo, err := f.storage.GetBalance(account.ID, to, nil)
		if err != nil {
			return nil, err
		}
		change := balTo.Sub(balFrom)
		if change.IsZero() {
			continue
		}
		items = append(items, value.TrialBalanceItem{
			AccountID:   account.ID,
			AccountType: account.Type,
			Balance:     change,
		})
		if account.Type == value.AccountTypeIncome {
			totalIncome = totalIncome.Add(change)
		} else {
			totalExpenses = totalExpenses.Add(change)
		}
	}

	// Tagged as Income so display puts net income in the credit column.
	items = append(items, value.TrialBalanceItem{
		AccountID:   "NET_INCOME",
		AccountType: value.AccountTypeIncome,
		Balance:     totalIncome.Sub(totalExpenses),
	})
	return items, nil
}

// AccountCount reports how many accounts exist.
type AccountCount struct {
	storage ledger.Backend
}

// Call implements account_count().
func (f *AccountCount) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return nil, &eval.InvalidArgumentCountError{Name: "account_count"}
	}
	return value.Int(len(f.storage.ListAccounts())), nil
}

// FxRate reads a rate curve value at a date.
type FxRate struct {
	storage ledger.Backend
}

// Call implements fx_rate(rate_name, date).
func (f *FxRate) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, &eval.InvalidArgumentCountError{Name: "fx_rate"}
	}
	name, err := stringArg(args, 0, "rate_name")
	if err != nil {
		return nil, err
	}
	date, err := dateArg(args, 1, "date")
	if err != nil {
		return nil, err
	}
	rate, err := f.storage.GetRate(name, date)
	if err != nil {
		return nil, err
	}
	return value.Money{Decimal: rate}, nil
}

// Convert multiplies an amount by a rate curve value at a date.
type Convert struct {
	storage ledger.Backend
}

// Call implements convert(amount, rate_name, date).
func (f *Convert) Call(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return nil, &eval.InvalidArgumentCountError{Name: "convert"}
	}
	amount, err := amountArg(args, 0, "amount")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, 1, "rate_name")
	if err != nil {
		return nil, err
	}
	date, err := dateArg(args, 2, "date")
	if err != nil {
		return nil, err
	}
	rate, err := f.storage.GetRate(name, date)
	if err != nil {
		return nil, err
	}
	return value.Money{Decimal: amount.Mul(rate)}, nil
}

// roundFunc implements round(value, places=2) with half-away-from-zero
// rounding.
func roundFunc(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, &eval.InvalidArgumentCountError{Name: "round"}
	}
	amount, err := amountArg(args, 0, "value")
	if err != nil {
		return nil, err
	}
	places := int32(2)
	if len(args) == 2 {
		n, ok := args[1].(value.Int)
		if !ok {
			return nil, &eval.InvalidArgumentError{Name: "places"}
		}
		places = int32(n)
	}
	return value.Money{Decimal: amount.Round(places)}, nil
}

// absFunc implements abs(value), preserving the input type.
func absFunc(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, &eval.InvalidArgumentCountError{Name: "abs"}
	}
	switch v := args[0].(type) {
	case value.Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case value.Money:
		return value.Money{Decimal: v.Decimal.Abs()}, nil
	}
	return nil, &eval.InvalidArgumentError{Name: "value"}
}

func minFunc(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, &eval.InvalidArgumentCountError{Name: "min"}
	}
	a, err := amountArg(args, 0, "a")
	if err != nil {
		return nil, err
	}
	b, err := amountArg(args, 1, "b")
	if err != nil {
		return nil, err
	}
	if a.LessThanOrEqual(b) {
		return value.Money{Decimal: a}, nil
	}
	return value.Money{Decimal: b}, nil
}

func maxFunc(_ *eval.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, &eval.InvalidArgumentCountError{Name: "max"}
	}
	a, err := amountArg(args, 0, "a")
	if err != nil {
		return nil, err
	}
	b, err := amountArg(args, 1, "b")
	if err != nil {
		return nil, err
	}
	if a.GreaterThanOrEqual(b) {
		return value.Money{Decimal: a}, nil
	}
	return value.Money{Decimal: b}, nil
}
