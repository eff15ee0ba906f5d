package fql_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMB-research/fql"
)

func open(t *testing.T, opts ...fql.Option) *fql.DB {
	t.Helper()
	db, err := fql.Open(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func money(t *testing.T, v fql.Value) decimal.Decimal {
	t.Helper()
	m, ok := v.(fql.Money)
	require.True(t, ok, "expected Money, got %T", v)
	return m.Decimal
}

func TestDB_TwoSidedJournal(t *testing.T) {
	db := open(t)
	results, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
		CREATE JOURNAL 2023-01-01, 10000, 'seed' CREDIT @equity, DEBIT @bank;
		GET balance(@bank, 2023-01-02) AS b, balance(@equity, 2023-01-02) AS e
	`)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 1, results[2].JournalsCreated)
	assert.Equal(t, "10000", money(t, results[3].Variables["b"]).String())
	assert.Equal(t, "10000", money(t, results[3].Variables["e"]).String())
}

func TestDB_FailedScriptLeavesNoTrace(t *testing.T) {
	db := open(t)
	_, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
	`)
	require.NoError(t, err)

	_, err = db.Execute(`
		CREATE JOURNAL 2023-01-01, 1000, 'ok' CREDIT @equity, DEBIT @bank;
		CREATE JOURNAL 2023-02-01, 500, 'bad' CREDIT @nonexistent, DEBIT @bank;
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")

	results, err := db.Execute("GET balance(@bank, 2099-12-31) AS b")
	require.NoError(t, err)
	assert.True(t, money(t, results[0].Variables["b"]).IsZero())
}

func TestDB_ParseErrorExecutesNothing(t *testing.T) {
	db := open(t)
	_, err := db.Execute("CREATE ACCOUNT @bank ASSET; INVALID !!!")
	require.Error(t, err)

	// The first statement must not have run.
	results, err := db.Execute("GET account_count() AS n")
	require.NoError(t, err)
	assert.Equal(t, fql.Int(0), results[0].Variables["n"])
}

func TestDB_Parameters(t *testing.T) {
	db := open(t)
	_, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
	`)
	require.NoError(t, err)

	_, err = db.ExecuteWithParams(
		"CREATE JOURNAL 2023-01-01, $amount, $note CREDIT @equity, DEBIT @bank",
		map[string]fql.Value{
			"amount": fql.Int(750),
			"note":   fql.String("funding"),
		})
	require.NoError(t, err)

	results, err := db.Execute("GET balance(@bank, 2023-02-01) AS b")
	require.NoError(t, err)
	assert.Equal(t, "750", money(t, results[0].Variables["b"]).String())
}

func TestDB_MissingParameterIsNull(t *testing.T) {
	db := open(t)
	results, err := db.Execute("GET $ghost IS NULL AS missing")
	require.NoError(t, err)
	assert.Equal(t, fql.Bool(true), results[0].Variables["missing"])
}

func TestDB_TrialBalanceAlwaysBalances(t *testing.T) {
	db := open(t)
	results, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
		CREATE ACCOUNT @loans ASSET;

		CREATE JOURNAL 2023-01-01, 20000, 'Investment'
		FOR Investor='Frank'
		CREDIT @equity, DEBIT @bank;

		CREATE JOURNAL 2023-02-01, 5000, 'Loan Issued'
		FOR Customer='John'
		DEBIT @loans, CREDIT @bank;

		GET trial_balance(2023-03-01) AS TB
	`)
	require.NoError(t, err)

	tb, ok := results[len(results)-1].Variables["TB"].(fql.TrialBalance)
	require.True(t, ok)
	debits, credits := decimal.Zero, decimal.Zero
	for _, item := range tb {
		if item.AccountType.IsDebitNormal() {
			debits = debits.Add(item.Balance)
		} else {
			credits = credits.Add(item.Balance)
		}
	}
	assert.True(t, debits.Equal(credits), "trial balance must be in balance")
}

func TestDB_StatementMatchesBalance(t *testing.T) {
	db := open(t)
	_, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
		CREATE JOURNAL 2023-01-15, 1000, 'Deposit A' CREDIT @equity, DEBIT @bank;
		CREATE JOURNAL 2023-01-20, 500, 'Deposit B' CREDIT @equity, DEBIT @bank;
	`)
	require.NoError(t, err)

	results, err := db.Execute(`
		GET statement(@bank, 2023-01-01, 2023-02-01) AS Stmt,
		    balance(@bank, 2023-02-01) AS B
	`)
	require.NoError(t, err)
	vars := results[0].Variables
	statement, ok := vars["Stmt"].(fql.Statement)
	require.True(t, ok)
	require.NotEmpty(t, statement)
	assert.True(t, statement[len(statement)-1].Balance.Equal(money(t, vars["B"])),
		"last statement balance must equal the as-of balance")
}

func TestDB_CustomFunction(t *testing.T) {
	db := open(t)
	db.RegisterFunction("answer", answerFunc{})
	results, err := db.Execute("GET answer() AS a")
	require.NoError(t, err)
	assert.Equal(t, fql.Int(42), results[0].Variables["a"])
}

type answerFunc struct{}

func (answerFunc) Call(_ *fql.FunctionContext, _ []fql.Value) (fql.Value, error) {
	return fql.Int(42), nil
}

func TestDB_IsReadOnly(t *testing.T) {
	readOnly, err := fql.IsReadOnly("GET balance(@bank, 2023-01-01) AS b")
	require.NoError(t, err)
	assert.True(t, readOnly)

	readOnly, err = fql.IsReadOnly("CREATE ACCOUNT @bank ASSET")
	require.NoError(t, err)
	assert.False(t, readOnly)

	_, err = fql.IsReadOnly("NOT A SCRIPT !!!")
	assert.Error(t, err)
}

func TestDB_DurableJournalLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db := open(t, fql.WithJournalLog(path))
	_, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @equity EQUITY;
		CREATE JOURNAL 2023-01-01, 10000, 'seed' CREDIT @equity, DEBIT @bank;
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := fql.Open(fql.WithJournalLog(path))
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	results, err := reopened.Execute("GET balance(@bank, 2023-12-31) AS b")
	require.NoError(t, err)
	assert.Equal(t, "10000", money(t, results[0].Variables["b"]).String())
}

func TestDB_LendingFundEndToEnd(t *testing.T) {
	db := open(t)
	results, err := db.Execute(`
		CREATE ACCOUNT @bank ASSET;
		CREATE ACCOUNT @loans ASSET;
		CREATE ACCOUNT @interest_earned INCOME;
		CREATE ACCOUNT @equity EQUITY;

		CREATE RATE prime;
		SET RATE prime 0.05 2023-01-01;
		SET RATE prime 0.06 2023-02-15;

		CREATE JOURNAL 2023-01-01, 20000, 'Investment'
		FOR Investor='Frank'
		CREDIT @equity, DEBIT @bank;

		CREATE JOURNAL 2023-02-01, 1000, 'Loan Issued'
		FOR Customer='John', Region='US'
		DEBIT @loans, CREDIT @bank;

		CREATE JOURNAL 2023-02-01, 500, 'Loan Issued'
		FOR Customer='Joe', Region='US'
		DEBIT @loans, CREDIT @bank;

		ACCRUE @loans FROM 2023-02-01 TO 2023-02-28
		WITH RATE prime COMPOUND DAILY
		BY Customer
		INTO JOURNAL 2023-03-01, 'Interest'
		DEBIT @loans,
		CREDIT @interest_earned;

		GET balance(@loans, 2023-03-01) AS LoanBookTotal,
		    balance(@loans, 2023-03-01, Customer='John') AS John,
		    balance(@loans, 2023-03-01, Customer='Joe') AS Joe
	`)
	require.NoError(t, err)

	vars := results[len(results)-1].Variables
	loanTotal := money(t, vars["LoanBookTotal"])
	assert.True(t, loanTotal.GreaterThan(decimal.NewFromInt(1500)))

	john := money(t, vars["John"])
	joe := money(t, vars["Joe"])
	assert.True(t, john.GreaterThan(decimal.NewFromInt(1000)))
	assert.True(t, joe.GreaterThan(decimal.NewFromInt(500)))
	assert.True(t, john.Add(joe).Equal(loanTotal), "partition balances must sum to the total")
}
