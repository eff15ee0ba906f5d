package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HMB-research/fql/internal/value"
)

// MemoryStore is the canonical in-memory ledger engine: per-account ordered
// day buckets, rate curves with as-of lookup, a journal header map and deep-
// copy snapshot transactions. Lock order is accounts, then rates, then
// journals.
type MemoryStore struct {
	accountsMu sync.RWMutex
	accounts   map[string]*ledgerAccount

	ratesMu sync.RWMutex
	rates   map[string]*rateCurve

	journalsMu sync.RWMutex
	journals   map[uuid.UUID]*Journal
	sequence   uint64

	txMu      sync.Mutex
	snapshots map[TxID]*snapshot
	nextTx    TxID
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*ledgerAccount),
		rates:     make(map[string]*rateCurve),
		journals:  make(map[uuid.UUID]*Journal),
		snapshots: make(map[TxID]*snapshot),
	}
}

type dimKey struct {
	name string
	key  string
}

func dimKeyOf(name string, v value.Value) dimKey {
	k, ok := value.Key(v)
	if !ok {
		k = "repr:" + v.String()
	}
	return dimKey{name: name, key: k}
}

type ledgerEntry struct {
	journalID uuid.UUID
	amount    decimal.Decimal
}

type dimCell struct {
	value    value.Value
	sum      decimal.Decimal
	journals []uuid.UUID
}

type ledgerDay struct {
	date        value.Date
	total       decimal.Decimal
	byDimension map[dimKey]*dimCell
	entries     []ledgerEntry
}

func newLedgerDay(date value.Date) *ledgerDay {
	return &ledgerDay{date: date, byDimension: make(map[dimKey]*dimCell)}
}

func (d *ledgerDay) addEntry(journalID uuid.UUID, amount decimal.Decimal, dimensions map[string]value.Value) {
	d.entries = append(d.entries, ledgerEntry{journalID: journalID, amount: amount})
	d.total = d.total.Add(amount)
	for name, v := range dimensions {
		key := dimKeyOf(name, v)
		cell, ok := d.byDimension[key]
		if !ok {
			cell = &dimCell{value: v}
			d.byDimension[key] = cell
		}
		cell.sum = cell.sum.Add(amount)
		cell.journals = append(cell.journals, journalID)
	}
}

type ledgerAccount struct {
	accountType value.AccountType
	days        []*ledgerDay
}

// dayAt returns the bucket for date, creating it in order if absent.
func (a *ledgerAccount) dayAt(date value.Date) *ledgerDay {
	i := sort.Search(len(a.days), func(i int) bool { return !a.days[i].date.Before(date) })
	if i < len(a.days) && a.days[i].date == date {
		return a.days[i]
	}
	day := newLedgerDay(date)
	a.days = append(a.days, nil)
	copy(a.days[i+1:], a.days[i:])
	a.days[i] = day
	return day
}

// signedAmount applies the account's natural side: debits are stored positive
// on debit-normal accounts and negative otherwise; credits are the inverse.
func (a *ledgerAccount) signedAmount(side Side, amount decimal.Decimal) decimal.Decimal {
	if (side == Debit) == a.accountType.IsDebitNormal() {
		return amount
	}
	return amount.Neg()
}

func (a *ledgerAccount) balance(date value.Date, dim *dimKey) decimal.Decimal {
	balance := decimal.Zero
	for _, day := range a.days {
		if day.date.After(date) {
			break
		}
		if dim == nil {
			balance = balance.Add(day.total)
		} else if cell, ok := day.byDimension[*dim]; ok {
			balance = balance.Add(cell.sum)
		}
	}
	return balance
}

type ratePoint struct {
	date value.Date
	rate decimal.Decimal
}

type rateCurve struct {
	points []ratePoint
}

func (c *rateCurve) set(date value.Date, rate decimal.Decimal) {
	i := sort.Search(len(c.points), func(i int) bool { return !c.points[i].date.Before(date) })
	if i < len(c.points) && c.points[i].date == date {
		c.points[i].rate = rate
		return
	}
	c.points = append(c.points, ratePoint{})
	copy(c.points[i+1:], c.points[i:])
	c.points[i] = ratePoint{date: date, rate: rate}
}

func (c *rateCurve) at(date value.Date) (decimal.Decimal, error) {
	i := sort.Search(len(c.points), func(i int) bool { return c.points[i].date.After(date) })
	if i == 0 {
		return decimal.Zero, ErrNoRateFound
	}
	return c.points[i-1].rate, nil
}

// CreateAccount upserts an account. An existing account keeps its postings;
// only the type is overwritten.
func (s *MemoryStore) CreateAccount(account Account) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	if existing, ok := s.accounts[account.ID]; ok {
		existing.accountType = account.Type
		return nil
	}
	s.accounts[account.ID] = &ledgerAccount{accountType: account.Type}
	return nil
}

// CreateRate creates an empty rate curve, replacing any existing curve.
func (s *MemoryStore) CreateRate(id string) error {
	s.ratesMu.Lock()
	defer s.ratesMu.Unlock()
	s.rates[id] = &rateCurve{}
	return nil
}

// SetRate inserts or overwrites a rate point; the latest set wins.
func (s *MemoryStore) SetRate(id string, date value.Date, rate decimal.Decimal) error {
	s.ratesMu.Lock()
	defer s.ratesMu.Unlock()
	curve, ok := s.rates[id]
	if !ok {
		return &RateNotFoundError{ID: id}
	}
	curve.set(date, rate)
	return nil
}

// GetRate returns the value at the greatest date <= the query date.
func (s *MemoryStore) GetRate(id string, date value.Date) (decimal.Decimal, error) {
	s.ratesMu.RLock()
	defer s.ratesMu.RUnlock()
	curve, ok := s.rates[id]
	if !ok {
		return decimal.Zero, ErrNoRateFound
	}
	return curve.at(date)
}

// CreateJournal validates and records a journal with all of its postings.
// All-or-nothing: nothing is written when any posting's account is missing or
// the raw debits and credits disagree.
func (s *MemoryStore) CreateJournal(cmd CreateJournalCommand) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	s.journalsMu.Lock()
	defer s.journalsMu.Unlock()

	debits, credits := decimal.Zero, decimal.Zero
	for _, entry := range cmd.Entries {
		if _, ok := s.accounts[entry.AccountID]; !ok {
			return &AccountNotFoundError{ID: entry.AccountID}
		}
		if entry.Side == Debit {
			debits = debits.Add(entry.Amount)
		} else {
			credits = credits.Add(entry.Amount)
		}
	}
	if !debits.Equal(credits) {
		return &UnbalancedJournalError{Debits: debits, Credits: credits}
	}

	s.sequence++
	journal := &Journal{
		ID:          uuid.New(),
		Sequence:    s.sequence,
		Date:        cmd.Date,
		Description: cmd.Description,
		Amount:      cmd.Amount,
		Dimensions:  copyDimensions(cmd.Dimensions),
		CreatedAt:   time.Now(),
	}
	s.journals[journal.ID] = journal

	for _, entry := range cmd.Entries {
		account := s.accounts[entry.AccountID]
		signed := account.signedAmount(entry.Side, entry.Amount)
		account.dayAt(cmd.Date).addEntry(journal.ID, signed, journal.Dimensions)
	}
	return nil
}

// GetBalance returns the cumulative signed amount on the account through
// date, optionally restricted to one dimension.
func (s *MemoryStore) GetBalance(account string, date value.Date, dim *value.Dimension) (decimal.Decimal, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	acct, ok := s.accounts[account]
	if !ok {
		return decimal.Zero, &AccountNotFoundError{ID: account}
	}
	if dim == nil {
		return acct.balance(date, nil), nil
	}
	key := dimKeyOf(dim.Name, dim.Value)
	return acct.balance(date, &key), nil
}

// GetStatement lists postings in [from, to] with running balances.
func (s *MemoryStore) GetStatement(account string, from, to value.Date, dim *value.Dimension) (value.Statement, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	s.journalsMu.RLock()
	defer s.journalsMu.RUnlock()

	acct, ok := s.accounts[account]
	if !ok {
		return nil, &AccountNotFoundError{ID: account}
	}

	var key *dimKey
	if dim != nil {
		k := dimKeyOf(dim.Name, dim.Value)
		key = &k
	}

	running := acct.balance(from.Prev(), key)
	statement := value.Statement{}
	for _, day := range acct.days {
		if day.date.Before(from) {
			continue
		}
		if day.date.After(to) {
			break
		}
		for _, entry := range day.entries {
			journal := s.journals[entry.journalID]
			if key != nil && !journalHasDimension(journal, dim) {
				continue
			}
			running = running.Add(entry.amount)
			description := ""
			if journal != nil {
				description = journal.Description
			}
			statement = append(statement, value.StatementTxn{
				JournalID:   entry.journalID,
				Date:        day.date,
				Description: description,
				Amount:      entry.amount,
				Balance:     running,
			})
		}
	}
	return statement, nil
}

func journalHasDimension(journal *Journal, dim *value.Dimension) bool {
	if journal == nil {
		return false
	}
	v, ok := journal.Dimensions[dim.Name]
	return ok && value.Equal(v, dim.Value)
}

// GetDimensionValues returns the distinct values the dimension key has taken
// on the account in [from, to], in canonical order.
func (s *MemoryStore) GetDimensionValues(account, key string, from, to value.Date) ([]value.Value, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	acct, ok := s.accounts[account]
	if !ok {
		return nil, &AccountNotFoundError{ID: account}
	}

	seen := make(map[string]value.Value)
	for _, day := range acct.days {
		if day.date.Before(from) {
			continue
		}
		if day.date.After(to) {
			break
		}
		for dk, cell := range day.byDimension {
			if dk.name == key {
				seen[dk.key] = cell.value
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]value.Value, len(keys))
	for i, k := range keys {
		values[i] = seen[k]
	}
	return values, nil
}

// ListAccounts returns all accounts in id order.
func (s *MemoryStore) ListAccounts() []Account {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	accounts := make([]Account, 0, len(s.accounts))
	for id, acct := range s.accounts {
		accounts = append(accounts, Account{ID: id, Type: acct.accountType})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

type snapshot struct {
	accounts map[string]*ledgerAccount
	rates    map[string]*rateCurve
	journals map[uuid.UUID]*Journal
	sequence uint64
}

// BeginTransaction deep-copies the live maps into a snapshot keyed by a
// fresh transaction id. Writers keep mutating the live maps; rollback swaps
// the snapshot back in.
func (s *MemoryStore) BeginTransaction() (TxID, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	s.ratesMu.RLock()
	defer s.ratesMu.RUnlock()
	s.journalsMu.RLock()
	defer s.journalsMu.RUnlock()

	snap := &snapshot{
		accounts: copyAccounts(s.accounts),
		rates:    copyRates(s.rates),
		journals: copyJournals(s.journals),
		sequence: s.sequence,
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.nextTx++
	tx := s.nextTx
	s.snapshots[tx] = snap
	return tx, nil
}

// CommitTransaction drops the snapshot, keeping the live state.
func (s *MemoryStore) CommitTransaction(tx TxID) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if _, ok := s.snapshots[tx]; !ok {
		return ErrNoActiveTransaction
	}
	delete(s.snapshots, tx)
	return nil
}

// RollbackTransaction atomically restores the snapshot taken at BEGIN.
func (s *MemoryStore) RollbackTransaction(tx TxID) error {
	s.txMu.Lock()
	snap, ok := s.snapshots[tx]
	if !ok {
		s.txMu.Unlock()
		return ErrNoActiveTransaction
	}
	delete(s.snapshots, tx)
	s.txMu.Unlock()

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	s.ratesMu.Lock()
	defer s.ratesMu.Unlock()
	s.journalsMu.Lock()
	defer s.journalsMu.Unlock()

	s.accounts = snap.accounts
	s.rates = snap.rates
	s.journals = snap.journals
	s.sequence = snap.sequence
	return nil
}

func copyDimensions(dims map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(dims))
	for k, v := range dims {
		out[k] = v
	}
	return out
}

func copyAccounts(accounts map[string]*ledgerAccount) map[string]*ledgerAccount {
	out := make(map[string]*ledgerAccount, len(accounts))
	for id, acct := range accounts {
		days := make([]*ledgerDay, len(acct.days))
		for i, day := range acct.days {
			copied := newLedgerDay(day.date)
			copied.total = day.total
			copied.entries = append([]ledgerEntry(nil), day.entries...)
			for dk, cell := range day.byDimension {
				copied.byDimension[dk] = &dimCell{
					value:    cell.value,
					sum:      cell.sum,
					journals: append([]uuid.UUID(nil), cell.journals...),
				}
			}
			days[i] = copied
		}
		out[id] = &ledgerAccount{accountType: acct.accountType, days: days}
	}
	return out
}

func copyRates(rates map[string]*rateCurve) map[string]*rateCurve {
	out := make(map[string]*rateCurve, len(rates))
	for id, curve := range rates {
		out[id] = &rateCurve{points: append([]ratePoint(nil), curve.points...)}
	}
	return out
}

func copyJournals(journals map[uuid.UUID]*Journal) map[uuid.UUID]*Journal {
	out := make(map[uuid.UUID]*Journal, len(journals))
	for id, journal := range journals {
		out[id] = journal
	}
	return out
}
