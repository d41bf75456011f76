package ledgertest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// Sync returns the store as a ledgersync.Repository.
func (s *Store) Sync() ledgersync.Repository { return syncRepo{s} }

type syncRepo struct{ s *Store }

func (r syncRepo) WithTx(ctx context.Context, fn func(context.Context, ledgersync.TxRepository) error) error {
	return r.s.run(func(st *state) error {
		return fn(ctx, &syncTx{store: r.s, st: st})
	})
}

type syncTx struct {
	store *Store
	st    *state
}

func (t *syncTx) Append(_ context.Context, logs ...activity.Log) error {
	if err := t.store.failure("Append"); err != nil {
		return err
	}
	return appendLogs(t.st, t.store.now(), logs)
}

func (t *syncTx) InsertHeader(_ context.Context, src vouchers.Source, h vouchers.Header) error {
	if err := t.store.failure("InsertHeader"); err != nil {
		return err
	}
	if t.st.headers[src.Kind] == nil {
		t.st.headers[src.Kind] = make(map[uuid.UUID]vouchers.Header)
	}
	if _, ok := t.st.headers[src.Kind][h.ID]; ok {
		return fmt.Errorf("%w: %s %s", shared.ErrDuplicate, src.Alias, h.ID)
	}
	h.Kind = src.Kind
	h.Fields = copyFields(h.Fields)
	t.st.headers[src.Kind][h.ID] = h
	return nil
}

func (t *syncTx) LockHeader(_ context.Context, src vouchers.Source, id uuid.UUID) (vouchers.Header, error) {
	h, ok := t.st.headers[src.Kind][id]
	if !ok || !h.Active() {
		return vouchers.Header{}, fmt.Errorf("%w: %s %s", shared.ErrNotFound, src.Alias, id)
	}
	h.Fields = copyFields(h.Fields)
	return h, nil
}

func (t *syncTx) UpdateHeader(_ context.Context, src vouchers.Source, h vouchers.Header) error {
	if err := t.store.failure("UpdateHeader"); err != nil {
		return err
	}
	cur, ok := t.st.headers[src.Kind][h.ID]
	if !ok || !cur.Active() {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, src.Alias, h.ID)
	}
	h.CreatedAt = cur.CreatedAt
	h.EncodedBy = cur.EncodedBy
	h.Fields = copyFields(h.Fields)
	t.st.headers[src.Kind][h.ID] = h
	return nil
}

func (t *syncTx) HeaderAttachments(_ context.Context, src vouchers.Source, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range ids {
		h, ok := t.st.headers[src.Kind][id]
		if ok && h.Active() && h.Attachment != nil && *h.Attachment != "" {
			out[id] = *h.Attachment
		}
	}
	return out, nil
}

func (t *syncTx) SoftDeleteHeaders(_ context.Context, src vouchers.Source, ids []uuid.UUID, at time.Time) (int64, error) {
	if err := t.store.failure("SoftDeleteHeaders"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		h, ok := t.st.headers[src.Kind][id]
		if !ok || !h.Active() {
			continue
		}
		deleted := at
		h.DeletedAt = &deleted
		h.UpdatedAt = at
		t.st.headers[src.Kind][id] = h
		n++
	}
	return n, nil
}

func (t *syncTx) SoftDeleteEntriesOf(_ context.Context, src vouchers.Source, headerIDs []uuid.UUID, at time.Time) (int64, error) {
	owners := make(map[uuid.UUID]struct{}, len(headerIDs))
	for _, id := range headerIDs {
		owners[id] = struct{}{}
	}
	var n int64
	list := t.st.entries[src.Kind]
	for i := range list {
		if _, ok := owners[list[i].HeaderID]; ok && list[i].Active() {
			deleted := at
			list[i].DeletedAt = &deleted
			list[i].UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (t *syncTx) InsertEntries(_ context.Context, src vouchers.Source, entries []vouchers.Entry) (int64, error) {
	if err := t.store.failure("InsertEntries"); err != nil {
		return 0, err
	}
	for _, e := range entries {
		if _, ok := t.st.headers[src.Kind][e.HeaderID]; !ok {
			return 0, fmt.Errorf("ledgertest: %s entry references missing header %s", src.Alias, e.HeaderID)
		}
	}
	t.st.entries[src.Kind] = append(t.st.entries[src.Kind], entries...)
	return int64(len(entries)), nil
}

func (t *syncTx) UpdateEntries(_ context.Context, src vouchers.Source, headerID uuid.UUID, updates []ledgersync.EntryUpdate, at time.Time) (int64, error) {
	if err := t.store.failure("UpdateEntries"); err != nil {
		return 0, err
	}
	var n int64
	list := t.st.entries[src.Kind]
	for _, u := range updates {
		for i := range list {
			cur := list[i]
			if cur.ID != u.Entry.ID || cur.HeaderID != headerID || !cur.Active() || cur.Version != u.ExpectedVersion {
				continue
			}
			next := u.Entry
			next.HeaderID = headerID
			next.CreatedAt = cur.CreatedAt
			next.UpdatedAt = at
			list[i] = next
			n++
			break
		}
	}
	return n, nil
}

func (t *syncTx) SoftDeleteEntries(_ context.Context, src vouchers.Source, headerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	var n int64
	list := t.st.entries[src.Kind]
	for _, id := range ids {
		for i := range list {
			if list[i].ID == id && list[i].HeaderID == headerID && list[i].Active() {
				deleted := at
				list[i].DeletedAt = &deleted
				list[i].UpdatedAt = at
				n++
				break
			}
		}
	}
	return n, nil
}

func (t *syncTx) CountActiveAccounts(_ context.Context, ids []uuid.UUID) (int, error) {
	return countActiveAccounts(t.st, ids), nil
}
