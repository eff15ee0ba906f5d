package fql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMB-research/fql/internal/value"
)

func parseOne(t *testing.T, input string) Statement {
	t.Helper()
	statements, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	return statements[0]
}

func TestParse_CreateAccount(t *testing.T) {
	stmt := parseOne(t, "CREATE ACCOUNT @bank ASSET")
	create, ok := stmt.(*CreateAccountStatement)
	require.True(t, ok)
	assert.Equal(t, "bank", create.AccountID)
	assert.Equal(t, value.AccountTypeAsset, create.Type)
}

func TestParse_CreateAccountCaseInsensitive(t *testing.T) {
	stmt := parseOne(t, "create account @payable liability")
	create, ok := stmt.(*CreateAccountStatement)
	require.True(t, ok)
	assert.Equal(t, value.AccountTypeLiability, create.Type)
}

func TestParse_CreateRate(t *testing.T) {
	stmt := parseOne(t, "CREATE RATE prime")
	create, ok := stmt.(*CreateRateStatement)
	require.True(t, ok)
	assert.Equal(t, "prime", create.ID)
}

func TestParse_SetRate(t *testing.T) {
	stmt := parseOne(t, "SET RATE prime 0.05 2023-01-01")
	set, ok := stmt.(*SetRateStatement)
	require.True(t, ok)
	assert.Equal(t, "prime", set.ID)
	_, ok = set.Rate.(*DecimalLiteral)
	assert.True(t, ok)
	_, ok = set.Date.(*DateLiteral)
	assert.True(t, ok)
}

func TestParse_CreateJournal(t *testing.T) {
	stmt := parseOne(t, `CREATE JOURNAL 2023-01-01, 10000, 'Investment'
		FOR Investor='Alice', Region='US'
		CREDIT @equity,
		DEBIT @bank`)
	journal, ok := stmt.(*CreateJournalStatement)
	require.True(t, ok)
	require.Len(t, journal.Dimensions, 2)
	assert.Equal(t, "Investor", journal.Dimensions[0].Name)
	assert.Equal(t, "Region", journal.Dimensions[1].Name)
	require.Len(t, journal.Operations, 2)
	assert.Equal(t, SideCredit, journal.Operations[0].Side)
	assert.Equal(t, "equity", journal.Operations[0].AccountID)
	assert.Nil(t, journal.Operations[0].Amount)
	assert.Equal(t, SideDebit, journal.Operations[1].Side)
}

func TestParse_JournalOperationAmounts(t *testing.T) {
	stmt := parseOne(t, `CREATE JOURNAL 2023-01-01, 100, 'Sales'
		CREDIT @sales,
		DEBIT @bank,
		CREDIT @tax_payable WITH RATE sales_tax,
		DEBIT @bank WITH RATE sales_tax`)
	journal, ok := stmt.(*CreateJournalStatement)
	require.True(t, ok)
	require.Len(t, journal.Operations, 4)
	assert.Nil(t, journal.Operations[0].Amount)
	rate, ok := journal.Operations[2].Amount.(*RateExpression)
	require.True(t, ok)
	assert.Equal(t, "sales_tax", rate.RateID)
}

func TestParse_Get(t *testing.T) {
	stmt := parseOne(t, "GET balance(@bank, 2023-01-02) AS b, account_count()")
	get, ok := stmt.(*GetStatement)
	require.True(t, ok)
	require.Len(t, get.Projections, 2)

	alias, ok := get.Projections[0].(*AliasExpression)
	require.True(t, ok)
	assert.Equal(t, "b", alias.Alias)
	call, ok := alias.Source.(*FunctionExpression)
	require.True(t, ok)
	assert.Equal(t, "balance", call.Name)
	require.Len(t, call.Args, 2)
	_, ok = call.Args[0].(*AccountLiteral)
	assert.True(t, ok)

	call2, ok := get.Projections[1].(*FunctionExpression)
	require.True(t, ok)
	assert.Empty(t, call2.Args)
}

func TestParse_DimensionArgument(t *testing.T) {
	stmt := parseOne(t, "GET balance(@bank, 2023-02-01, Investor='Alice') AS a")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	call := alias.Source.(*FunctionExpression)
	require.Len(t, call.Args, 3)
	dim, ok := call.Args[2].(*DimensionExpression)
	require.True(t, ok)
	assert.Equal(t, "Investor", dim.Name)
	str, ok := dim.Value.(*StringLiteral)
	require.True(t, ok)
	assert.Equal(t, "Alice", str.Value)
}

func TestParse_Accrue(t *testing.T) {
	stmt := parseOne(t, `ACCRUE @loans FROM 2023-02-01 TO 2023-02-28
		WITH RATE prime COMPOUND DAILY
		BY Customer
		INTO JOURNAL 2023-03-01, 'Interest'
		DEBIT @loans,
		CREDIT @interest_earned`)
	accrue, ok := stmt.(*AccrueStatement)
	require.True(t, ok)
	assert.Equal(t, "loans", accrue.AccountID)
	assert.Equal(t, "prime", accrue.RateID)
	assert.Equal(t, CompoundingDaily, accrue.Compounding)
	assert.Equal(t, "Customer", accrue.ByDimension)
	require.Len(t, accrue.Into.Operations, 2)
}

func TestParse_AccrueWithoutCompounding(t *testing.T) {
	stmt := parseOne(t, `ACCRUE @loans FROM 2023-02-01 TO 2023-02-28
		WITH RATE prime BY Customer
		INTO JOURNAL 2023-03-01, 'Interest' DEBIT @loans, CREDIT @interest`)
	accrue := stmt.(*AccrueStatement)
	assert.Equal(t, CompoundingNone, accrue.Compounding)
}

func TestParse_Transactions(t *testing.T) {
	statements, err := Parse("BEGIN; COMMIT; ROLLBACK")
	require.NoError(t, err)
	require.Len(t, statements, 3)
	_, ok := statements[0].(*BeginStatement)
	assert.True(t, ok)
	_, ok = statements[1].(*CommitStatement)
	assert.True(t, ok)
	_, ok = statements[2].(*RollbackStatement)
	assert.True(t, ok)
}

func TestParse_ExpressionPrecedence(t *testing.T) {
	stmt := parseOne(t, "GET 1 + 2 * 3 AS x")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	add, ok := alias.Source.(*BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, OpAdd, add.Op)
	mul, ok := add.Right.(*BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, OpMultiply, mul.Op)
}

func TestParse_LogicalPrecedence(t *testing.T) {
	stmt := parseOne(t, "GET TRUE OR FALSE AND FALSE AS x")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	or, ok := alias.Source.(*BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, OpOr, or.Op)
	and, ok := or.Right.(*BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)
}

func TestParse_Case(t *testing.T) {
	stmt := parseOne(t, "GET CASE WHEN TRUE THEN 1 ELSE 2 END AS x")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	caseExpr, ok := alias.Source.(*CaseExpression)
	require.True(t, ok)
	assert.Nil(t, caseExpr.Match)
	require.Len(t, caseExpr.Whens, 1)
	assert.NotNil(t, caseExpr.Else)
}

func TestParse_CaseWithMatch(t *testing.T) {
	stmt := parseOne(t, "GET CASE $x WHEN 1 THEN 'one' WHEN 2 THEN 'two' END AS x")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	caseExpr := alias.Source.(*CaseExpression)
	require.NotNil(t, caseExpr.Match)
	assert.Len(t, caseExpr.Whens, 2)
	assert.Nil(t, caseExpr.Else)
}

func TestParse_ListAndIn(t *testing.T) {
	stmt := parseOne(t, "GET 2 IN [1, 2, 3] AS found")
	get := stmt.(*GetStatement)
	alias := get.Projections[0].(*AliasExpression)
	in, ok := alias.Source.(*BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, OpIn, in.Op)
	list, ok := in.Right.(*ListExpression)
	require.True(t, ok)
	assert.Len(t, list.Elements, 3)
}

func TestParse_IsNull(t *testing.T) {
	stmt := parseOne(t, "GET $x IS NULL AS a, $y IS NOT NULL AS b")
	get := stmt.(*GetStatement)
	a := get.Projections[0].(*AliasExpression).Source.(*IsNullExpression)
	assert.False(t, a.Negate)
	b := get.Projections[1].(*AliasExpression).Source.(*IsNullExpression)
	assert.True(t, b.Negate)
}

func TestParse_Property(t *testing.T) {
	stmt := parseOne(t, "GET order.total AS total")
	get := stmt.(*GetStatement)
	prop, ok := get.Projections[0].(*AliasExpression).Source.(*PropertyExpression)
	require.True(t, ok)
	assert.Equal(t, "order", prop.Name)
	assert.Equal(t, "total", prop.Key)
}

func TestParse_NegativeLiterals(t *testing.T) {
	stmt := parseOne(t, "GET -5 AS i, -2.5 AS d")
	get := stmt.(*GetStatement)
	i := get.Projections[0].(*AliasExpression).Source.(*IntLiteral)
	assert.Equal(t, int64(-5), i.Value)
	d := get.Projections[1].(*AliasExpression).Source.(*DecimalLiteral)
	assert.Equal(t, "-2.5", d.Value.String())
}

func TestParse_TrailingSemicolonOptional(t *testing.T) {
	for _, input := range []string{"BEGIN", "BEGIN;", "  BEGIN ;  "} {
		statements, err := Parse(input)
		require.NoError(t, err, input)
		assert.Len(t, statements, 1)
	}
}

func TestParse_EmptyScript(t *testing.T) {
	statements, err := Parse("   ")
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		"INVALID GARBAGE !!!",
		"CREATE ACCOUNT bank ASSET",
		"CREATE ACCOUNT @bank BOGUS",
		"CREATE JOURNAL 2023-01-01 10000, 'x' DEBIT @bank",
		"GET",
		"GET CASE END",
		"ACCRUE @loans FROM 2023-01-01",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
			assert.Greater(t, parseErr.Line, 0)
		})
	}
}
