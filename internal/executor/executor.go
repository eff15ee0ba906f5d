// Package executor interprets parsed FQL statements against a storage
// backend, delegating expression evaluation to the evaluator.
package executor

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/eval"
	"github.com/HMB-research/fql/internal/fql"
	"github.com/HMB-research/fql/internal/ledger"
	"github.com/HMB-research/fql/internal/value"
)

// ErrTransactionActive is returned for a BEGIN while an explicit transaction
// is already active; explicit transactions do not nest (each one still nests
// inside the implicit script transaction).
var ErrTransactionActive = errors.New("transaction already active")

// Context carries the execution state of one session: the ambient effective
// date, variable bindings, and the explicit transaction open via BEGIN, if
// any.
type Context struct {
	EffectiveDate value.Date
	Variables     eval.Variables

	explicitTx *ledger.TxID
}

// NewContext builds an execution context.
func NewContext(effectiveDate value.Date, variables eval.Variables) *Context {
	if variables == nil {
		variables = eval.Variables{}
	}
	return &Context{EffectiveDate: effectiveDate, Variables: variables}
}

func (c *Context) evalContext() *eval.Context {
	return eval.NewContext(c.EffectiveDate, c.Variables.Clone())
}

// Result is the outcome of one executed statement. Only GET produces
// variables.
type Result struct {
	Variables       eval.Variables
	JournalsCreated int
}

func newResult() *Result {
	return &Result{Variables: eval.Variables{}}
}

// Executor runs statements. It holds no per-script state; transaction state
// lives in the Context.
type Executor struct {
	evaluator *eval.Evaluator
	storage   ledger.Backend
}

// New creates an executor bound to an evaluator and storage backend.
func New(evaluator *eval.Evaluator, storage ledger.Backend) *Executor {
	return &Executor{evaluator: evaluator, storage: storage}
}

// Execute runs a single statement without an implicit transaction; callers
// manage their own transaction boundaries.
func (e *Executor) Execute(ctx *Context, statement fql.Statement) (*Result, error) {
	switch s := statement.(type) {
	case *fql.CreateAccountStatement:
		return e.createAccount(s)
	case *fql.CreateRateStatement:
		return e.createRate(s)
	case *fql.CreateJournalStatement:
		return e.createJournal(ctx, s)
	case *fql.SetRateStatement:
		return e.setRate(ctx, s)
	case *fql.GetStatement:
		return e.get(ctx, s)
	case *fql.AccrueStatement:
		return e.accrue(ctx, s)
	case *fql.BeginStatement:
		return e.begin(ctx)
	case *fql.CommitStatement:
		return e.commit(ctx)
	case *fql.RollbackStatement:
		return e.rollback(ctx)
	}
	return nil, eval.ErrInvalidType
}

// ExecuteScript wraps the statement sequence in an implicit transaction:
// every statement commits together or the ledger is left untouched.
func (e *Executor) ExecuteScript(ctx *Context, statements []fql.Statement) ([]*Result, error) {
	tx, err := e.storage.BeginTransaction()
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(statements))
	for _, statement := range statements {
		result, err := e.Execute(ctx, statement)
		if err != nil {
			// Drop a dangling explicit snapshot first; the outer rollback
			// restores the pre-script state on its own.
			if ctx.explicitTx != nil {
				_ = e.storage.CommitTransaction(*ctx.explicitTx)
				ctx.explicitTx = nil
			}
			if rbErr := e.storage.RollbackTransaction(tx); rbErr != nil {
				log.Error().Err(rbErr).Msg("rollback after failed statement")
			}
			return nil, err
		}
		results = append(results, result)
	}

	// A script that ends inside an explicit BEGIN commits with the script.
	if ctx.explicitTx != nil {
		_ = e.storage.CommitTransaction(*ctx.explicitTx)
		ctx.explicitTx = nil
	}
	if err := e.storage.CommitTransaction(tx); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) createAccount(s *fql.CreateAccountStatement) (*Result, error) {
	if err := e.storage.CreateAccount(ledger.Account{ID: s.AccountID, Type: s.Type}); err != nil {
		return nil, err
	}
	log.Debug().Str("account", s.AccountID).Str("type", string(s.Type)).Msg("created account")
	return newResult(), nil
}

func (e *Executor) createRate(s *fql.CreateRateStatement) (*Result, error) {
	if err := e.storage.CreateRate(s.ID); err != nil {
		return nil, err
	}
	log.Debug().Str("rate", s.ID).Msg("created rate")
	return newResult(), nil
}

func (e *Executor) createJournal(ctx *Context, s *fql.CreateJournalStatement) (*Result, error) {
	evalCtx := ctx.evalContext()

	date, err := e.evaluateDate(evalCtx, s.Date)
	if err != nil {
		return nil, err
	}
	// Rate references inside the journal's operations resolve at the
	// journal date.
	evalCtx.SetEffectiveDate(date)

	amount, err := e.evaluateAmount(evalCtx, s.Amount)
	if err != nil {
		return nil, err
	}
	description, err := e.evaluateString(evalCtx, s.Description)
	if err != nil {
		return nil, err
	}

	dimensions := make(map[string]value.Value, len(s.Dimensions))
	for _, dim := range s.Dimensions {
		v, err := e.evaluator.Evaluate(evalCtx, dim.Value)
		if err != nil {
			return nil, err
		}
		dimensions[dim.Name] = v
	}

	entries, err := e.buildEntries(evalCtx, s.Operations, amount)
	if err != nil {
		return nil, err
	}

	cmd := ledger.CreateJournalCommand{
		Date:        date,
		Description: description,
		Amount:      amount,
		Dimensions:  dimensions,
		Entries:     entries,
	}
	if err := e.storage.CreateJournal(cmd); err != nil {
		return nil, err
	}
	log.Debug().Str("date", date.String()).Str("amount", amount.String()).Msg("created journal")

	result := newResult()
	result.JournalsCreated = 1
	return result, nil
}

// buildEntries turns DEBIT/CREDIT clauses into entry commands. An absent
// amount inherits the journal amount; a Percentage multiplies it.
func (e *Executor) buildEntries(evalCtx *eval.Context, operations []fql.LedgerOperation, journalAmount decimal.Decimal) ([]ledger.EntryCommand, error) {
	entries := make([]ledger.EntryCommand, 0, len(operations))
	for _, op := range operations {
		amount := journalAmount
		if op.Amount != nil {
			v, err := e.evaluator.Evaluate(evalCtx, op.Amount)
			if err != nil {
				return nil, err
			}
			switch t := v.(type) {
			case value.Money:
				amount = t.Decimal
			case value.Int:
				amount = decimal.NewFromInt(int64(t))
			case value.Percentage:
				amount = journalAmount.Mul(t.Decimal)
			default:
				return nil, eval.ErrInvalidType
			}
		}
		side := ledger.Debit
		if op.Side == fql.SideCredit {
			side = ledger.Credit
		}
		entries = append(entries, ledger.EntryCommand{Side: side, AccountID: op.AccountID, Amount: amount})
	}
	return entries, nil
}

func (e *Executor) setRate(ctx *Context, s *fql.SetRateStatement) (*Result, error) {
	evalCtx := ctx.evalContext()

	date, err := e.evaluateDate(evalCtx, s.Date)
	if err != nil {
		return nil, err
	}
	evalCtx.SetEffectiveDate(date)

	v, err := e.evaluator.Evaluate(evalCtx, s.Rate)
	if err != nil {
		return nil, err
	}
	var rate decimal.Decimal
	switch t := v.(type) {
	case value.Money:
		rate = t.Decimal
	case value.Int:
		rate = decimal.NewFromInt(int64(t))
	case value.Percentage:
		rate = t.Decimal
	default:
		return nil, eval.ErrInvalidType
	}

	if err := e.storage.SetRate(s.ID, date, rate); err != nil {
		return nil, err
	}
	log.Debug().Str("rate", s.ID).Str("date", date.String()).Str("value", rate.String()).Msg("set rate")
	return newResult(), nil
}

func (e *Executor) get(ctx *Context, s *fql.GetStatement) (*Result, error) {
	evalCtx := ctx.evalContext()
	result := newResult()
	for _, projection := range s.Projections {
		alias, v, err := e.evaluator.EvaluateProjection(evalCtx, projection)
		if err != nil {
			return nil, err
		}
		result.Variables[alias] = v
	}
	return result, nil
}

// accrue distributes daily interest over a date window, partitioned by the
// values the BY dimension has taken on the account. One journal is created
// per dimension value with a non-zero accrued amount.
func (e *Executor) accrue(ctx *Context, s *fql.AccrueStatement) (*Result, error) {
	evalCtx := ctx.evalContext()
	result := newResult()

	start, err := e.evaluateDate(evalCtx, s.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := e.evaluateDate(evalCtx, s.EndDate)
	if err != nil {
		return nil, err
	}
	effectiveDate, err := e.evaluateDate(evalCtx, s.Into.Date)
	if err != nil {
		return nil, err
	}
	description, err := e.evaluateString(evalCtx, s.Into.Description)
	if err != nil {
		return nil, err
	}
	evalCtx.SetEffectiveDate(effectiveDate)

	dimensionValues, err := e.storage.GetDimensionValues(s.AccountID, s.ByDimension, start, end)
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, len(dimensionValues))
	for dt := start; !dt.After(end); dt = dt.Next() {
		rate, err := e.storage.GetRate(s.RateID, dt)
		if err != nil {
			return nil, err
		}
		for i, dimensionValue := range dimensionValues {
			dim := value.Dimension{Name: s.ByDimension, Value: dimensionValue}
			opening, err := e.storage.GetBalance(s.AccountID, dt, &dim)
			if err != nil {
				return nil, err
			}
			delta := dailyAccrual(rate, opening.Add(amounts[i]), s.Compounding)
			amounts[i] = amounts[i].Add(delta)
		}
	}

	for i, dimensionValue := range dimensionValues {
		amount := amounts[i].Round(2)
		if amount.IsZero() {
			continue
		}
		entries, err := e.buildEntries(evalCtx, s.Into.Operations, amount)
		if err != nil {
			return nil, err
		}
		cmd := ledger.CreateJournalCommand{
			Date:        effectiveDate,
			Description: description,
			Amount:      amount,
			Dimensions:  map[string]value.Value{s.ByDimension: dimensionValue},
			Entries:     entries,
		}
		if err := e.storage.CreateJournal(cmd); err != nil {
			return nil, err
		}
		result.JournalsCreated++
	}

	log.Debug().
		Str("account", s.AccountID).
		Int("journals", result.JournalsCreated).
		Msg("accrual complete")
	return result, nil
}

var daysPerYear = decimal.NewFromInt(365)

// dailyAccrual computes one day's interest on a present value.
func dailyAccrual(rate, pv decimal.Decimal, compounding fql.Compounding) decimal.Decimal {
	if compounding == fql.CompoundingDaily {
		return pv.Mul(rate).Div(daysPerYear)
	}
	return pv.Mul(rate)
}

func (e *Executor) begin(ctx *Context) (*Result, error) {
	if ctx.explicitTx != nil {
		return nil, ErrTransactionActive
	}
	tx, err := e.storage.BeginTransaction()
	if err != nil {
		return nil, err
	}
	ctx.explicitTx = &tx
	return newResult(), nil
}

func (e *Executor) commit(ctx *Context) (*Result, error) {
	if ctx.explicitTx == nil {
		return nil, ledger.ErrNoActiveTransaction
	}
	tx := *ctx.explicitTx
	ctx.explicitTx = nil
	if err := e.storage.CommitTransaction(tx); err != nil {
		return nil, err
	}
	return newResult(), nil
}

func (e *Executor) rollback(ctx *Context) (*Result, error) {
	if ctx.explicitTx == nil {
		return nil, ledger.ErrNoActiveTransaction
	}
	tx := *ctx.explicitTx
	ctx.explicitTx = nil
	if err := e.storage.RollbackTransaction(tx); err != nil {
		return nil, err
	}
	return newResult(), nil
}

func (e *Executor) evaluateDate(evalCtx *eval.Context, expr fql.Expression) (value.Date, error) {
	v, err := e.evaluator.Evaluate(evalCtx, expr)
	if err != nil {
		return value.Date{}, err
	}
	d, ok := v.(value.Date)
	if !ok {
		return value.Date{}, eval.ErrInvalidType
	}
	return d, nil
}

func (e *Executor) evaluateAmount(evalCtx *eval.Context, expr fql.Expression) (decimal.Decimal, error) {
	v, err := e.evaluator.Evaluate(evalCtx, expr)
	if err != nil {
		return decimal.Decimal{}, err
	}
	switch t := v.(type) {
	case value.Money:
		return t.Decimal, nil
	case value.Int:
		return decimal.NewFromInt(int64(t)), nil
	}
	return decimal.Decimal{}, eval.ErrInvalidType
}

func (e *Executor) evaluateString(evalCtx *eval.Context, expr fql.Expression) (string, error) {
	v, err := e.evaluator.Evaluate(evalCtx, expr)
	if err != nil {
		return "", err
	}
	s, ok := v.(value.String)
	if !ok {
		return "", eval.ErrInvalidType
	}
	return string(s), nil
}
