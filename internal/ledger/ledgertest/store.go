// Package ledgertest provides an in-memory ledger store for tests. Every WithTx call
// works on a copy of the state and publishes it only when the callback succeeds.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

type state struct {
	accounts map[uuid.UUID]accounts.Account
	headers  map[vouchers.Kind]map[uuid.UUID]vouchers.Header
	entries  map[vouchers.Kind][]vouchers.Entry
	balances map[uuid.UUID]balances.BeginningBalance
	logs     []activity.Log
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]accounts.Account),
		headers:  make(map[vouchers.Kind]map[uuid.UUID]vouchers.Header),
		entries:  make(map[vouchers.Kind][]vouchers.Entry),
		balances: make(map[uuid.UUID]balances.BeginningBalance),
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, a := range s.accounts {
		out.accounts[id] = a
	}
	for kind, byID := range s.headers {
		m := make(map[uuid.UUID]vouchers.Header, len(byID))
		for id, h := range byID {
			h.Fields = copyFields(h.Fields)
			m[id] = h
		}
		out.headers[kind] = m
	}
	for kind, list := range s.entries {
		out.entries[kind] = append([]vouchers.Entry(nil), list...)
	}
	for id, bb := range s.balances {
		bb.Entries = append([]balances.Line(nil), bb.Entries...)
		out.balances[id] = bb
	}
	out.logs = append([]activity.Log(nil), s.logs...)
	return out
}

func copyFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store is a concurrency-safe in-memory ledger. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	st    *state
	fails map[string]error
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), fails: make(map[string]error), now: time.Now}
}

// FailNext makes the next call of the named repository method return err, for
// exercising rollback paths.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) failure(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.fails[method]
	if !ok {
		return nil
	}
	delete(s.fails, method)
	return err
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// run executes fn against a working copy and publishes it on success.
func (s *Store) run(fn func(*state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var work *state
	s.read(func(st *state) { work = st.clone() })
	if err := fn(work); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// AddAccount seeds an active account and returns it.
func (s *Store) AddAccount(code, description string) accounts.Account {
	acc := accounts.Account{
		ID:             uuid.New(),
		Code:           code,
		Description:    description,
		Classification: "asset",
		Nature:         "debit",
		CreatedAt:      s.now(),
	}
	s.PutAccount(acc)
	return acc
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(acc accounts.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[acc.ID] = acc
}

// PutHeader seeds a header directly, bypassing the sync engine.
func (s *Store) PutHeader(h vouchers.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.headers[h.Kind] == nil {
		s.st.headers[h.Kind] = make(map[uuid.UUID]vouchers.Header)
	}
	s.st.headers[h.Kind][h.ID] = h
}

// PutEntry seeds an entry for kind.
func (s *Store) PutEntry(kind vouchers.Kind, e vouchers.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.entries[kind] = append(s.st.entries[kind], e)
}

// PutBalance seeds a beginning balance.
func (s *Store) PutBalance(bb balances.BeginningBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.balances[bb.ID] = bb
}

// Header returns a header including soft-deleted ones.
func (s *Store) Header(kind vouchers.Kind, id uuid.UUID) (vouchers.Header, bool) {
	var (
		h  vouchers.Header
		ok bool
	)
	s.read(func(st *state) { h, ok = st.headers[kind][id] })
	return h, ok
}

// HeaderCount counts headers of kind, soft-deleted ones included.
func (s *Store) HeaderCount(kind vouchers.Kind) int {
	var n int
	s.read(func(st *state) { n = len(st.headers[kind]) })
	return n
}

// EntriesOf returns every entry of a header in insertion order, soft-deleted ones included.
func (s *Store) EntriesOf(kind vouchers.Kind, headerID uuid.UUID) []vouchers.Entry {
	var out []vouchers.Entry
	s.read(func(st *state) {
		for _, e := range st.entries[kind] {
			if e.HeaderID == headerID {
				out = append(out, e)
			}
		}
	})
	return out
}

// Logs returns the committed audit trail.
func (s *Store) Logs() []activity.Log {
	var out []activity.Log
	s.read(func(st *state) { out = append(out, st.logs...) })
	return out
}

// Balance returns a beginning balance including soft-deleted ones.
func (s *Store) Balance(id uuid.UUID) (balances.BeginningBalance, bool) {
	var (
		bb balances.BeginningBalance
		ok bool
	)
	s.read(func(st *state) { bb, ok = st.balances[id] })
	return bb, ok
}

func appendLogs(st *state, at time.Time, logs []activity.Log) error {
	for _, l := range logs {
		if l.Activity == "" || l.Resource == "" {
			return errors.New("ledgertest: log requires activity and resource")
		}
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.CreatedAt = at
		st.logs = append(st.logs, l)
	}
	return nil
}

func countActiveAccounts(st *state, ids []uuid.UUID) int {
	n := 0
	for _, id := range accounts.UniqueIDs(ids) {
		if acc, ok := st.accounts[id]; ok && acc.DeletedAt == nil {
			n++
		}
	}
	return n
}

// ListActive implements accounts.Repository.
func (s *Store) ListActive(_ context.Context) ([]accounts.Account, error) {
	var out []accounts.Account
	s.read(func(st *state) {
		for _, a := range st.accounts {
			if a.DeletedAt == nil {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// GetByIDs implements accounts.Repository.
func (s *Store) GetByIDs(_ context.Context, ids []uuid.UUID) ([]accounts.Account, error) {
	if err := s.failure("GetByIDs"); err != nil {
		return nil, err
	}
	var out []accounts.Account
	s.read(func(st *state) {
		for _, id := range accounts.UniqueIDs(ids) {
			if a, ok := st.accounts[id]; ok && a.DeletedAt == nil {
				out = append(out, a)
			}
		}
	})
	return out, nil
}

// GetByCode implements accounts.Repository.
func (s *Store) GetByCode(_ context.Context, code string) (accounts.Account, error) {
	var (
		acc   accounts.Account
		found bool
	)
	s.read(func(st *state) {
		for _, a := range st.accounts {
			if a.DeletedAt == nil && accounts.NormalizeCode(a.Code) == accounts.NormalizeCode(code) {
				acc, found = a, true
				return
			}
		}
	})
	if !found {
		return accounts.Account{}, fmt.Errorf("%w: account code %s", shared.ErrNotFound, code)
	}
	return acc, nil
}

// ActiveEntries implements consolidate.Reader.
func (s *Store) ActiveEntries(_ context.Context, src vouchers.Source, accountIDs []uuid.UUID) ([]vouchers.Entry, error) {
	if err := s.failure("ActiveEntries:" + string(src.Kind)); err != nil {
		return nil, err
	}
	want := make(map[uuid.UUID]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = struct{}{}
	}
	var out []vouchers.Entry
	s.read(func(st *state) {
		for _, e := range st.entries[src.Kind] {
			if _, ok := want[e.AccountCodeID]; ok && e.Active() {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

// Headers implements consolidate.Reader.
func (s *Store) Headers(_ context.Context, src vouchers.Source, ids []uuid.UUID) ([]vouchers.Header, error) {
	var out []vouchers.Header
	s.read(func(st *state) {
		for _, id := range accounts.UniqueIDs(ids) {
			if h, ok := st.headers[src.Kind][id]; ok {
				out = append(out, h)
			}
		}
	})
	return out, nil
}
