// Package fql is an embedded, domain-specific database for double-entry
// bookkeeping. Scripts written in the FQL query language create accounts,
// record balanced journals tagged with dimensions, maintain rate curves,
// compute balances and statements, and run daily interest accruals.
//
// A DB wires the parser, expression evaluator, statement executor and the
// in-memory ledger engine together. Every script runs inside an implicit
// transaction: it either commits whole or leaves no trace.
package fql

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/HMB-research/fql/internal/eval"
	"github.com/HMB-research/fql/internal/executor"
	parser "github.com/HMB-research/fql/internal/fql"
	"github.com/HMB-research/fql/internal/functions"
	"github.com/HMB-research/fql/internal/ledger"
	"github.com/HMB-research/fql/internal/value"
)

// Re-exported value types so embedding callers can build parameters and
// inspect results without reaching into internal packages.
type (
	// Value is the tagged sum type produced by queries.
	Value = value.Value
	// Null, Bool, Int, Money, Percentage, String, Date, List, Map,
	// AccountID, Dimension, Statement and TrialBalance are its variants.
	Null         = value.Null
	Bool         = value.Bool
	Int          = value.Int
	Money        = value.Money
	Percentage   = value.Percentage
	String       = value.String
	Date         = value.Date
	List         = value.List
	Map          = value.Map
	AccountID    = value.AccountID
	Dimension    = value.Dimension
	Statement    = value.Statement
	TrialBalance = value.TrialBalance

	// AccountType classifies chart-of-accounts entries.
	AccountType = value.AccountType

	// Function and FunctionContext allow hosts to extend the built-in
	// function library.
	Function        = eval.Function
	FunctionContext = eval.Context
)

// Account type constants.
const (
	Asset     = value.AccountTypeAsset
	Liability = value.AccountTypeLiability
	Equity    = value.AccountTypeEquity
	Income    = value.AccountTypeIncome
	Expense   = value.AccountTypeExpense
)

// Result is the outcome of one executed statement. Only GET statements
// populate Variables.
type Result struct {
	Variables       map[string]Value
	JournalsCreated int
}

type options struct {
	logPath string
}

// Option configures a DB at open time.
type Option func(*options)

// WithJournalLog layers a durable append-only write log (bbolt) at path over
// the in-memory engine; committed writes are replayed on the next open.
func WithJournalLog(path string) Option {
	return func(o *options) { o.logPath = path }
}

// DB is an embedded FQL ledger database. It is safe for concurrent readers;
// scripts that use transactions should be serialised by the caller.
type DB struct {
	storage  ledger.Backend
	durable  *ledger.DurableStore
	registry *eval.Registry
	executor *executor.Executor
}

// Open creates a database with the full built-in function library
// registered.
func Open(opts ...Option) (*DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var storage ledger.Backend = ledger.NewMemoryStore()
	var durable *ledger.DurableStore
	if o.logPath != "" {
		var err error
		durable, err = ledger.OpenDurableStore(storage, o.logPath)
		if err != nil {
			return nil, fmt.Errorf("open journal log: %w", err)
		}
		storage = durable
	}

	registry := eval.NewRegistry()
	functions.Register(registry, storage)
	evaluator := eval.NewEvaluator(registry, storage)

	return &DB{
		storage:  storage,
		durable:  durable,
		registry: registry,
		executor: executor.New(evaluator, storage),
	}, nil
}

// Close releases the durable journal log, if one is configured.
func (db *DB) Close() error {
	if db.durable != nil {
		return db.durable.Close()
	}
	return nil
}

// RegisterFunction installs a host-provided function under name, replacing
// any built-in with the same name.
func (db *DB) RegisterFunction(name string, fn Function) {
	db.registry.Register(name, fn)
}

// IsReadOnly parses a script and reports whether it consists solely of GET
// statements. Transport layers use it to gate read-only callers.
func IsReadOnly(script string) (bool, error) {
	statements, err := parser.Parse(script)
	if err != nil {
		return false, err
	}
	for _, statement := range statements {
		if _, ok := statement.(*parser.GetStatement); !ok {
			return false, nil
		}
	}
	return true, nil
}

// Execute parses and runs a script with today's date as the effective date.
func (db *DB) Execute(script string) ([]Result, error) {
	return db.ExecuteWithParams(script, nil)
}

// ExecuteWithParams runs a script with $parameter bindings. The script
// executes inside an implicit transaction; on error nothing is committed and
// no results are returned.
func (db *DB) ExecuteWithParams(script string, params map[string]Value) ([]Result, error) {
	statements, err := parser.Parse(script)
	if err != nil {
		return nil, err
	}

	variables := make(eval.Variables, len(params))
	for name, v := range params {
		variables[name] = v
	}
	ctx := executor.NewContext(value.Today(), variables)

	executed, err := db.executor.ExecuteScript(ctx, statements)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(executed))
	for i, res := range executed {
		vars := make(map[string]Value, len(res.Variables))
		for name, v := range res.Variables {
			vars[name] = v
		}
		results[i] = Result{Variables: vars, JournalsCreated: res.JournalsCreated}
	}
	log.Debug().Int("statements", len(statements)).Msg("script executed")
	return results, nil
}
