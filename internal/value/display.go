package value

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// String renders the statement as a table with Date, Description, Amount and
// Balance columns.
func (s Statement) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Date\tDescription\tAmount\tBalance")
	fmt.Fprintln(w, "\t\t\t")
	for _, txn := range s {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", txn.Date, txn.Description, txn.Amount, txn.Balance)
	}
	_ = w.Flush()
	return sb.String()
}

// String renders the trial balance as a table with Account, Debit and Credit
// columns. Debit-normal accounts report in the Debit column, the rest in
// Credit.
func (tb TrialBalance) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Account\tDebit\tCredit")
	fmt.Fprintln(w, "\t\t")
	for _, item := range tb {
		if item.AccountType.IsDebitNormal() {
			fmt.Fprintf(w, "%s\t%s\t\n", item.AccountID, item.Balance)
		} else {
			fmt.Fprintf(w, "%s\t\t%s\n", item.AccountID, item.Balance)
		}
	}
	_ = w.Flush()
	return sb.String()
}
