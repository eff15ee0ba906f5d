package value

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// wireValue is the tagged JSON envelope used on the API surface and in the
// durable journal log. Money and percentages travel as strings to stay exact.
type wireValue struct {
	Type   string               `json:"type"`
	Bool   *bool                `json:"bool,omitempty"`
	Int    *int64               `json:"int,omitempty"`
	Dec    string               `json:"value,omitempty"`
	Str    *string              `json:"string,omitempty"`
	Date   string               `json:"date,omitempty"`
	List   []json.RawMessage    `json:"list,omitempty"`
	Map    map[string]wireValue `json:"map,omitempty"`
	Dim    *wireDimension       `json:"dimension,omitempty"`
	Stmt   []wireStatementTxn   `json:"statement,omitempty"`
	TB     []wireTrialBalance   `json:"trial_balance,omitempty"`
	Acct   string               `json:"account,omitempty"`
}

type wireDimension struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type wireStatementTxn struct {
	JournalID   string `json:"journal_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Balance     string `json:"balance"`
}

type wireTrialBalance struct {
	AccountID   string      `json:"account_id"`
	AccountType AccountType `json:"account_type"`
	Balance     string      `json:"balance"`
}

// MarshalJSON encodes a value into the tagged wire form.
func MarshalJSON(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(v Value) (wireValue, error) {
	switch t := v.(type) {
	case nil, Null:
		return wireValue{Type: "null"}, nil
	case Bool:
		b := bool(t)
		return wireValue{Type: "bool", Bool: &b}, nil
	case Int:
		i := int64(t)
		return wireValue{Type: "int", Int: &i}, nil
	case Money:
		return wireValue{Type: "money", Dec: t.Decimal.String()}, nil
	case Percentage:
		return wireValue{Type: "percentage", Dec: t.Decimal.String()}, nil
	case String:
		s := string(t)
		return wireValue{Type: "string", Str: &s}, nil
	case Date:
		return wireValue{Type: "date", Date: t.String()}, nil
	case AccountID:
		return wireValue{Type: "account", Acct: string(t)}, nil
	case List:
		elems := make([]json.RawMessage, len(t))
		for i, e := range t {
			raw, err := MarshalJSON(e)
			if err != nil {
				return wireValue{}, err
			}
			elems[i] = raw
		}
		return wireValue{Type: "list", List: elems}, nil
	case Map:
		m := make(map[string]wireValue, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w, err := toWire(t[k])
			if err != nil {
				return wireValue{}, err
			}
			m[k] = w
		}
		return wireValue{Type: "map", Map: m}, nil
	case Dimension:
		raw, err := MarshalJSON(t.Value)
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{Type: "dimension", Dim: &wireDimension{Name: t.Name, Value: raw}}, nil
	case Statement:
		txns := make([]wireStatementTxn, len(t))
		for i, txn := range t {
			txns[i] = wireStatementTxn{
				JournalID:   txn.JournalID.String(),
				Date:        txn.Date.String(),
				Description: txn.Description,
				Amount:      txn.Amount.String(),
				Balance:     txn.Balance.String(),
			}
		}
		return wireValue{Type: "statement", Stmt: txns}, nil
	case TrialBalance:
		items := make([]wireTrialBalance, len(t))
		for i, item := range t {
			items[i] = wireTrialBalance{
				AccountID:   item.AccountID,
				AccountType: item.AccountType,
				Balance:     item.Balance.String(),
			}
		}
		return wireValue{Type: "trial_balance", TB: items}, nil
	}
	return wireValue{}, fmt.Errorf("unsupported value type %T", v)
}

// UnmarshalJSON decodes a tagged wire value back into a Value.
func UnmarshalJSON(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return fromWire(&w)
}

func fromWire(w *wireValue) (Value, error) {
	switch w.Type {
	case "null":
		return Null{}, nil
	case "bool":
		if w.Bool == nil {
			return nil, fmt.Errorf("bool value missing")
		}
		return Bool(*w.Bool), nil
	case "int":
		if w.Int == nil {
			return nil, fmt.Errorf("int value missing")
		}
		return Int(*w.Int), nil
	case "money":
		d, err := decimal.NewFromString(w.Dec)
		if err != nil {
			return nil, fmt.Errorf("decode money: %w", err)
		}
		return Money{d}, nil
	case "percentage":
		d, err := decimal.NewFromString(w.Dec)
		if err != nil {
			return nil, fmt.Errorf("decode percentage: %w", err)
		}
		return Percentage{d}, nil
	case "string":
		if w.Str == nil {
			return nil, fmt.Errorf("string value missing")
		}
		return String(*w.Str), nil
	case "date":
		d, err := ParseDate(w.Date)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "account":
		return AccountID(w.Acct), nil
	case "list":
		list := make(List, len(w.List))
		for i, raw := range w.List {
			v, err := UnmarshalJSON(raw)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case "map":
		m := make(Map, len(w.Map))
		for k, entry := range w.Map {
			v, err := fromWire(&entry)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case "dimension":
		if w.Dim == nil {
			return nil, fmt.Errorf("dimension value missing")
		}
		inner, err := UnmarshalJSON(w.Dim.Value)
		if err != nil {
			return nil, err
		}
		return Dimension{Name: w.Dim.Name, Value: inner}, nil
	case "statement":
		stmt := make(Statement, len(w.Stmt))
		for i, txn := range w.Stmt {
			id, err := uuid.Parse(txn.JournalID)
			if err != nil {
				return nil, fmt.Errorf("decode journal id: %w", err)
			}
			date, err := ParseDate(txn.Date)
			if err != nil {
				return nil, err
			}
			amount, err := decimal.NewFromString(txn.Amount)
			if err != nil {
				return nil, fmt.Errorf("decode amount: %w", err)
			}
			balance, err := decimal.NewFromString(txn.Balance)
			if err != nil {
				return nil, fmt.Errorf("decode balance: %w", err)
			}
			stmt[i] = StatementTxn{JournalID: id, Date: date, Description: txn.Description, Amount: amount, Balance: balance}
		}
		return stmt, nil
	case "trial_balance":
		tb := make(TrialBalance, len(w.TB))
		for i, item := range w.TB {
			balance, err := decimal.NewFromString(item.Balance)
			if err != nil {
				return nil, fmt.Errorf("decode balance: %w", err)
			}
			tb[i] = TrialBalanceItem{AccountID: item.AccountID, AccountType: item.AccountType, Balance: balance}
		}
		return tb, nil
	}
	return nil, fmt.Errorf("unknown value type %q", w.Type)
}
