package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"

	"github.com/HMB-research/fql/internal/value"
)

var logBucket = []byte("journal_log")

const (
	recordCreateAccount = "CREATE_ACCOUNT"
	recordCreateRate    = "CREATE_RATE"
	recordSetRate       = "SET_RATE"
	recordCreateJournal = "CREATE_JOURNAL"
)

// logRecord is one durable write, JSON-encoded into the bbolt log. Dimension
// values use the tagged wire encoding so they replay exactly.
type logRecord struct {
	Kind        string                     `json:"kind"`
	AccountID   string                     `json:"account_id,omitempty"`
	AccountType value.AccountType          `json:"account_type,omitempty"`
	RateID      string                     `json:"rate_id,omitempty"`
	Date        string                     `json:"date,omitempty"`
	Rate        string                     `json:"rate,omitempty"`
	Description string                     `json:"description,omitempty"`
	Amount      string                     `json:"amount,omitempty"`
	Dimensions  map[string]json.RawMessage `json:"dimensions,omitempty"`
	Entries     []logEntry                 `json:"entries,omitempty"`
}

type logEntry struct {
	Side      string `json:"side"`
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

// DurableStore layers an append-only bbolt write log over another backend.
// Committed writes are logged and replayed through the inner engine on open;
// writes inside a transaction are buffered and flushed only when the
// outermost transaction commits.
type DurableStore struct {
	inner Backend
	db    *bolt.DB

	mu      sync.Mutex
	pending []logRecord
	txStart map[TxID]int
}

// OpenDurableStore opens (or creates) the log at path and replays it into
// inner.
func OpenDurableStore(inner Backend, path string) (*DurableStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal log: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal log: %w", err)
	}

	s := &DurableStore{inner: inner, db: db, txStart: make(map[TxID]int)}
	if err := s.replay(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying log file.
func (s *DurableStore) Close() error {
	return s.db.Close()
}

func (s *DurableStore) replay() error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(logBucket).ForEach(func(_, data []byte) error {
			var rec logRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode log record: %w", err)
			}
			return s.apply(&rec)
		})
	})
}

func (s *DurableStore) apply(rec *logRecord) error {
	switch rec.Kind {
	case recordCreateAccount:
		return s.inner.CreateAccount(Account{ID: rec.AccountID, Type: rec.AccountType})
	case recordCreateRate:
		return s.inner.CreateRate(rec.RateID)
	case recordSetRate:
		date, err := value.ParseDate(rec.Date)
		if err != nil {
			return err
		}
		rate, err := decimal.NewFromString(rec.Rate)
		if err != nil {
			return fmt.Errorf("decode rate: %w", err)
		}
		return s.inner.SetRate(rec.RateID, date, rate)
	case recordCreateJournal:
		cmd, err := rec.toJournalCommand()
		if err != nil {
			return err
		}
		return s.inner.CreateJournal(*cmd)
	}
	return fmt.Errorf("unknown log record kind %q", rec.Kind)
}

func (rec *logRecord) toJournalCommand() (*CreateJournalCommand, error) {
	date, err := value.ParseDate(rec.Date)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	dims := make(map[string]value.Value, len(rec.Dimensions))
	for name, raw := range rec.Dimensions {
		v, err := value.UnmarshalJSON(raw)
		if err != nil {
			return nil, err
		}
		dims[name] = v
	}
	entries := make([]EntryCommand, len(rec.Entries))
	for i, entry := range rec.Entries {
		entryAmount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode entry amount: %w", err)
		}
		side := Debit
		if entry.Side == Credit.String() {
			side = Credit
		}
		entries[i] = EntryCommand{Side: side, AccountID: entry.AccountID, Amount: entryAmount}
	}
	return &CreateJournalCommand{
		Date:        date,
		Description: rec.Description,
		Amount:      amount,
		Dimensions:  dims,
		Entries:     entries,
	}, nil
}

// record buffers rec while a transaction is open, otherwise writes it to the
// log immediately.
func (s *DurableStore) record(rec logRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txStart) > 0 {
		s.pending = append(s.pending, rec)
		return nil
	}
	return s.flush([]logRecord{rec})
}

func (s *DurableStore) flush(records []logRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logBucket)
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode log record: %w", err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], seq)
			if err := b.Put(key[:], data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateAccount writes through and logs the upsert.
func (s *DurableStore) CreateAccount(account Account) error {
	if err := s.inner.CreateAccount(account); err != nil {
		return err
	}
	return s.record(logRecord{Kind: recordCreateAccount, AccountID: account.ID, AccountType: account.Type})
}

// CreateRate writes through and logs the curve creation.
func (s *DurableStore) CreateRate(id string) error {
	if err := s.inner.CreateRate(id); err != nil {
		return err
	}
	return s.record(logRecord{Kind: recordCreateRate, RateID: id})
}

// SetRate writes through and logs the rate point.
func (s *DurableStore) SetRate(id string, date value.Date, rate decimal.Decimal) error {
	if err := s.inner.SetRate(id, date, rate); err != nil {
		return err
	}
	return s.record(logRecord{Kind: recordSetRate, RateID: id, Date: date.String(), Rate: rate.String()})
}

// CreateJournal writes through and logs the full journal command.
func (s *DurableStore) CreateJournal(cmd CreateJournalCommand) error {
	if err := s.inner.CreateJournal(cmd); err != nil {
		return err
	}
	dims := make(map[string]json.RawMessage, len(cmd.Dimensions))
	for name, v := range cmd.Dimensions {
		raw, err := value.MarshalJSON(v)
		if err != nil {
			return fmt.Errorf("encode dimension %s: %w", name, err)
		}
		dims[name] = raw
	}
	entries := make([]logEntry, len(cmd.Entries))
	for i, entry := range cmd.Entries {
		entries[i] = logEntry{Side: entry.Side.String(), AccountID: entry.AccountID, Amount: entry.Amount.String()}
	}
	return s.record(logRecord{
		Kind:        recordCreateJournal,
		Date:        cmd.Date.String(),
		Description: cmd.Description,
		Amount:      cmd.Amount.String(),
		Dimensions:  dims,
		Entries:     entries,
	})
}

// GetRate delegates to the inner engine.
func (s *DurableStore) GetRate(id string, date value.Date) (decimal.Decimal, error) {
	return s.inner.GetRate(id, date)
}

// GetBalance delegates to the inner engine.
func (s *DurableStore) GetBalance(account string, date value.Date, dim *value.Dimension) (decimal.Decimal, error) {
	return s.inner.GetBalance(account, date, dim)
}

// GetStatement delegates to the inner engine.
func (s *DurableStore) GetStatement(account string, from, to value.Date, dim *value.Dimension) (value.Statement, error) {
	return s.inner.GetStatement(account, from, to, dim)
}

// GetDimensionValues delegates to the inner engine.
func (s *DurableStore) GetDimensionValues(account, key string, from, to value.Date) ([]value.Value, error) {
	return s.inner.GetDimensionValues(account, key, from, to)
}

// ListAccounts delegates to the inner engine.
func (s *DurableStore) ListAccounts() []Account {
	return s.inner.ListAccounts()
}

// BeginTransaction starts buffering log records for the new transaction.
func (s *DurableStore) BeginTransaction() (TxID, error) {
	tx, err := s.inner.BeginTransaction()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txStart[tx] = len(s.pending)
	return tx, nil
}

// CommitTransaction commits the inner transaction; when it was the outermost
// one, the buffered records are flushed to the log.
func (s *DurableStore) CommitTransaction(tx TxID) error {
	if err := s.inner.CommitTransaction(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txStart, tx)
	if len(s.txStart) > 0 {
		return nil
	}
	records := s.pending
	s.pending = nil
	return s.flush(records)
}

// RollbackTransaction rolls the inner engine back and discards every record
// buffered since the transaction began.
func (s *DurableStore) RollbackTransaction(tx TxID) error {
	if err := s.inner.RollbackTransaction(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start, ok := s.txStart[tx]
	if !ok {
		return nil
	}
	delete(s.txStart, tx)
	if start <= len(s.pending) {
		s.pending = s.pending[:start]
	}
	return nil
}
