package eval

import (
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/fql"
	"github.com/HMB-research/fql/internal/ledger"
	"github.com/HMB-research/fql/internal/value"
)

// Evaluator reduces expression trees to values. It reads through storage for
// rate references and delegates calls to the function registry.
type Evaluator struct {
	registry *Registry
	storage  ledger.Backend
}

// NewEvaluator creates an evaluator bound to a registry and a storage
// backend.
func NewEvaluator(registry *Registry, storage ledger.Backend) *Evaluator {
	return &Evaluator{registry: registry, storage: storage}
}

// Evaluate reduces an expression to a value or an evaluation error.
func (e *Evaluator) Evaluate(ctx *Context, expr fql.Expression) (value.Value, error) {
	switch n := expr.(type) {
	case *fql.NullLiteral:
		return value.Null{}, nil
	case *fql.BoolLiteral:
		return value.Bool(n.Value), nil
	case *fql.IntLiteral:
		return value.Int(n.Value), nil
	case *fql.DecimalLiteral:
		return value.Money{Decimal: n.Value}, nil
	case *fql.PercentageLiteral:
		return value.Percentage{Decimal: n.Value}, nil
	case *fql.StringLiteral:
		return value.String(n.Value), nil
	case *fql.DateLiteral:
		return n.Value, nil
	case *fql.AccountLiteral:
		return value.AccountID(n.ID), nil
	case *fql.ParameterExpression:
		if v, ok := ctx.Variable(n.Name); ok {
			return v, nil
		}
		return value.Null{}, nil
	case *fql.IdentifierExpression:
		if v, ok := ctx.Variable(n.Name); ok {
			return v, nil
		}
		return nil, &UnknownIdentifierError{Name: n.Name}
	case *fql.PropertyExpression:
		v, ok := ctx.Variable(n.Name)
		if !ok {
			return value.Null{}, nil
		}
		m, ok := v.(value.Map)
		if !ok {
			return value.Null{}, nil
		}
		if entry, ok := m[n.Key]; ok {
			return entry, nil
		}
		return value.Null{}, nil
	case *fql.AliasExpression:
		return e.Evaluate(ctx, n.Source)
	case *fql.NotExpression:
		b, err := e.EvaluatePredicate(ctx, n.Expr)
		if err != nil {
			return nil, err
		}
		return value.Bool(!b), nil
	case *fql.IsNullExpression:
		v, err := e.Evaluate(ctx, n.Expr)
		if err != nil {
			return nil, err
		}
		isNull := value.IsNull(v)
		if n.Negate {
			return value.Bool(!isNull), nil
		}
		return value.Bool(isNull), nil
	case *fql.RateExpression:
		rate, err := e.storage.GetRate(n.RateID, ctx.EffectiveDate())
		if err != nil {
			return nil, err
		}
		return value.Percentage{Decimal: rate}, nil
	case *fql.DimensionExpression:
		v, err := e.Evaluate(ctx, n.Value)
		if err != nil {
			return nil, err
		}
		return value.Dimension{Name: n.Name, Value: v}, nil
	case *fql.BinaryExpression:
		return e.evaluateBinary(ctx, n)
	case *fql.FunctionExpression:
		return e.evaluateFunction(ctx, n)
	case *fql.CaseExpression:
		return e.evaluateCase(ctx, n)
	case *fql.ListExpression:
		list := make(value.List, len(n.Elements))
		for i, elem := range n.Elements {
			v, err := e.Evaluate(ctx, elem)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	}
	return nil, ErrInvalidType
}

// EvaluatePredicate reduces an expression to a boolean; any non-Bool result
// counts as false.
func (e *Evaluator) EvaluatePredicate(ctx *Context, expr fql.Expression) (bool, error) {
	v, err := e.Evaluate(ctx, expr)
	if err != nil {
		return false, err
	}
	if b, ok := v.(value.Bool); ok {
		return bool(b), nil
	}
	return false, nil
}

// EvaluateProjection reduces a GET projection to its alias and value. The
// alias comes from AS, a property key, a parameter or identifier name, and
// falls back to "expression".
func (e *Evaluator) EvaluateProjection(ctx *Context, expr fql.Expression) (string, value.Value, error) {
	v, err := e.Evaluate(ctx, expr)
	if err != nil {
		return "", nil, err
	}
	alias := "expression"
	switch n := expr.(type) {
	case *fql.AliasExpression:
		alias = n.Alias
	case *fql.PropertyExpression:
		alias = n.Key
	case *fql.ParameterExpression:
		alias = n.Name
	case *fql.IdentifierExpression:
		alias = n.Name
	}
	return alias, v, nil
}

func (e *Evaluator) evaluateBinary(ctx *Context, expr *fql.BinaryExpression) (value.Value, error) {
	switch expr.Op {
	case fql.OpAnd:
		left, err := e.EvaluatePredicate(ctx, expr.Left)
		if err != nil {
			return nil, err
		}
		if !left {
			return value.Bool(false), nil
		}
		right, err := e.EvaluatePredicate(ctx, expr.Right)
		if err != nil {
			return nil, err
		}
		return value.Bool(right), nil
	case fql.OpOr:
		left, err := e.EvaluatePredicate(ctx, expr.Left)
		if err != nil {
			return nil, err
		}
		if left {
			return value.Bool(true), nil
		}
		right, err := e.EvaluatePredicate(ctx, expr.Right)
		if err != nil {
			return nil, err
		}
		return value.Bool(right), nil
	}

	left, err := e.Evaluate(ctx, expr.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(ctx, expr.Right)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case fql.OpEq:
		return equalValues(left, right), nil
	case fql.OpNe:
		return notEqualValues(left, right), nil
	case fql.OpLt, fql.OpLe, fql.OpGt, fql.OpGe:
		return orderValues(expr.Op, left, right), nil
	case fql.OpIn:
		list, ok := right.(value.List)
		if !ok {
			return nil, ErrInvalidType
		}
		return value.Bool(list.Contains(left)), nil
	case fql.OpAdd:
		return addValues(left, right), nil
	case fql.OpSubtract:
		return subtractValues(left, right), nil
	case fql.OpMultiply:
		return multiplyValues(left, right), nil
	case fql.OpDivide:
		return divideValues(left, right)
	case fql.OpModulo:
		return moduloValues(left, right)
	case fql.OpExponent:
		return exponentValues(left, right), nil
	}
	return nil, ErrInvalidType
}

// equalValues compares for equality pairwise: Int, Money, Date, String,
// Bool, and Null=Null. Mismatched types are unequal.
func equalValues(left, right value.Value) value.Bool {
	switch l := left.(type) {
	case value.Int:
		if r, ok := right.(value.Int); ok {
			return value.Bool(l == r)
		}
	case value.Money:
		if r, ok := right.(value.Money); ok {
			return value.Bool(l.Decimal.Equal(r.Decimal))
		}
	case value.Date:
		if r, ok := right.(value.Date); ok {
			return value.Bool(l == r)
		}
	case value.String:
		if r, ok := right.(value.String); ok {
			return value.Bool(l == r)
		}
	case value.Bool:
		if r, ok := right.(value.Bool); ok {
			return value.Bool(l == r)
		}
	case value.Null:
		return value.Bool(value.IsNull(right))
	}
	return false
}

// notEqualValues mirrors equalValues pairwise; mismatched types yield false
// rather than the negation of equality, and Null <> Null is false.
func notEqualValues(left, right value.Value) value.Bool {
	switch l := left.(type) {
	case value.Int:
		if r, ok := right.(value.Int); ok {
			return value.Bool(l != r)
		}
	case value.Money:
		if r, ok := right.(value.Money); ok {
			return value.Bool(!l.Decimal.Equal(r.Decimal))
		}
	case value.Date:
		if r, ok := right.(value.Date); ok {
			return value.Bool(l != r)
		}
	case value.String:
		if r, ok := right.(value.String); ok {
			return value.Bool(l != r)
		}
	case value.Bool:
		if r, ok := right.(value.Bool); ok {
			return value.Bool(l != r)
		}
	}
	return false
}

// orderValues applies an ordering comparison for Int, Money and Date pairs;
// mismatched types yield false.
func orderValues(op fql.BinaryOp, left, right value.Value) value.Bool {
	cmp, ok := compareValues(left, right)
	if !ok {
		return false
	}
	switch op {
	case fql.OpLt:
		return value.Bool(cmp < 0)
	case fql.OpLe:
		return value.Bool(cmp <= 0)
	case fql.OpGt:
		return value.Bool(cmp > 0)
	case fql.OpGe:
		return value.Bool(cmp >= 0)
	}
	return false
}

func compareValues(left, right value.Value) (int, bool) {
	switch l := left.(type) {
	case value.Int:
		if r, ok := right.(value.Int); ok {
			switch {
			case l < r:
				return -1, true
			case l > r:
				return 1, true
			}
			return 0, true
		}
	case value.Money:
		if r, ok := right.(value.Money); ok {
			return l.Decimal.Cmp(r.Decimal), true
		}
	case value.Date:
		if r, ok := right.(value.Date); ok {
			switch {
			case l.Before(r):
				return -1, true
			case l.After(r):
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

func addValues(left, right value.Value) value.Value {
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			return l + r
		case value.Money:
			return value.Money{Decimal: decimal.NewFromInt(int64(l)).Add(r.Decimal)}
		case value.String:
			return value.String(l.String() + string(r))
		}
	case value.Money:
		switch r := right.(type) {
		case value.Money:
			return value.Money{Decimal: l.Decimal.Add(r.Decimal)}
		case value.Int:
			return value.Money{Decimal: l.Decimal.Add(decimal.NewFromInt(int64(r)))}
		}
	case value.String:
		switch r := right.(type) {
		case value.String:
			return l + r
		case value.Int:
			return value.String(string(l) + r.String())
		case value.Bool:
			return value.String(string(l) + r.String())
		}
	case value.Bool:
		if r, ok := right.(value.String); ok {
			return value.String(l.String() + string(r))
		}
	}
	return value.Null{}
}

func subtractValues(left, right value.Value) value.Value {
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			return l - r
		case value.Money:
			return value.Money{Decimal: decimal.NewFromInt(int64(l)).Sub(r.Decimal)}
		}
	case value.Money:
		switch r := right.(type) {
		case value.Money:
			return value.Money{Decimal: l.Decimal.Sub(r.Decimal)}
		case value.Int:
			return value.Money{Decimal: l.Decimal.Sub(decimal.NewFromInt(int64(r)))}
		}
	}
	return value.Null{}
}

func multiplyValues(left, right value.Value) value.Value {
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			return l * r
		case value.Money:
			return value.Money{Decimal: decimal.NewFromInt(int64(l)).Mul(r.Decimal)}
		}
	case value.Money:
		switch r := right.(type) {
		case value.Money:
			return value.Money{Decimal: l.Decimal.Mul(r.Decimal)}
		case value.Int:
			return value.Money{Decimal: l.Decimal.Mul(decimal.NewFromInt(int64(r)))}
		}
	}
	return value.Null{}
}

func divideValues(left, right value.Value) (value.Value, error) {
	if isZeroOperand(right) {
		return nil, ErrDivideByZero
	}
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			return l / r, nil
		case value.Money:
			return value.Money{Decimal: decimal.NewFromInt(int64(l)).Div(r.Decimal)}, nil
		}
	case value.Money:
		switch r := right.(type) {
		case value.Money:
			return value.Money{Decimal: l.Decimal.Div(r.Decimal)}, nil
		case value.Int:
			return value.Money{Decimal: l.Decimal.Div(decimal.NewFromInt(int64(r)))}, nil
		}
	}
	return value.Null{}, nil
}

func moduloValues(left, right value.Value) (value.Value, error) {
	if isZeroOperand(right) {
		return nil, ErrDivideByZero
	}
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			return l % r, nil
		case value.Money:
			return value.Money{Decimal: decimal.NewFromInt(int64(l)).Mod(r.Decimal)}, nil
		}
	case value.Money:
		switch r := right.(type) {
		case value.Money:
			return value.Money{Decimal: l.Decimal.Mod(r.Decimal)}, nil
		case value.Int:
			return value.Money{Decimal: l.Decimal.Mod(decimal.NewFromInt(int64(r)))}, nil
		}
	}
	return value.Null{}, nil
}

// isZeroOperand reports whether the divisor is a numeric zero. Division by a
// zero Int or Money is always an error, never Null.
func isZeroOperand(v value.Value) bool {
	switch t := v.(type) {
	case value.Int:
		return t == 0
	case value.Money:
		return t.Decimal.IsZero()
	}
	return false
}

func exponentValues(left, right value.Value) value.Value {
	switch l := left.(type) {
	case value.Int:
		switch r := right.(type) {
		case value.Int:
			if r >= 0 {
				return value.Int(intPow(int64(l), int64(r)))
			}
			return decimalPow(decimal.NewFromInt(int64(l)), decimal.NewFromInt(int64(r)))
		case value.Money:
			return decimalPow(decimal.NewFromInt(int64(l)), r.Decimal)
		}
	case value.Money:
		switch r := right.(type) {
		case value.Int:
			return decimalPow(l.Decimal, decimal.NewFromInt(int64(r)))
		case value.Money:
			return decimalPow(l.Decimal, r.Decimal)
		}
	}
	return value.Null{}
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for ; exp > 0; exp-- {
		result *= base
	}
	return result
}

// decimalPow returns Money, or Null when the power is undefined.
func decimalPow(base, exp decimal.Decimal) value.Value {
	result, err := base.PowWithPrecision(exp, 28)
	if err != nil {
		return value.Null{}
	}
	return value.Money{Decimal: result}
}

func (e *Evaluator) evaluateFunction(ctx *Context, expr *fql.FunctionExpression) (value.Value, error) {
	args := make([]value.Value, len(expr.Args))
	for i, arg := range expr.Args {
		v, err := e.Evaluate(ctx, arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn, ok := e.registry.Lookup(expr.Name)
	if !ok {
		return nil, &UnknownFunctionError{Name: expr.Name}
	}
	return fn.Call(ctx, args)
}

func (e *Evaluator) evaluateCase(ctx *Context, expr *fql.CaseExpression) (value.Value, error) {
	var match value.Value
	if expr.Match != nil {
		v, err := e.Evaluate(ctx, expr.Match)
		if err != nil {
			return nil, err
		}
		match = v
	}

	for _, when := range expr.Whens {
		if match != nil {
			condition, err := e.Evaluate(ctx, when.When)
			if err != nil {
				return nil, err
			}
			if value.Equal(condition, match) {
				return e.Evaluate(ctx, when.Then)
			}
			continue
		}
		condition, err := e.EvaluatePredicate(ctx, when.When)
		if err != nil {
			return nil, err
		}
		if condition {
			return e.Evaluate(ctx, when.Then)
		}
	}

	if expr.Else != nil {
		return e.Evaluate(ctx, expr.Else)
	}
	return value.Null{}, nil
}
