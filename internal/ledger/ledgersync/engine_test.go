package ledgersync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

var (
	fixedNow = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	author   = activity.Author{ID: uuid.MustParse("6f1c7e0a-3f52-4c0e-9f55-0d3f6c1b2a11"), Username: "cashier"}
)

type recordingRemover struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingRemover) Remove(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveSync(kind, op string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.calls = append(o.calls, kind+"/"+op+"/"+status)
}

type fixture struct {
	store   *ledgertest.Store
	engine  *ledgersync.Engine
	remover *recordingRemover
	cash    uuid.UUID
	loans   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.NewStore()
	cash := store.AddAccount("1010", "Cash on Hand")
	loans := store.AddAccount("1120", "Loans Receivable")
	remover := &recordingRemover{}
	engine := ledgersync.NewEngine(store.Sync(), vouchers.Default, remover, nil)
	engine.WithNow(func() time.Time { return fixedNow })
	return &fixture{store: store, engine: engine, remover: remover, cash: cash.ID, loans: loans.ID}
}

func strPtr(s string) *string { return &s }

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f *fixture) header(code string, entries ...ledgersync.EntryOp) ledgersync.HeaderInput {
	return ledgersync.HeaderInput{
		Code:    code,
		Date:    time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		Amount:  money("200"),
		Entries: entries,
	}
}

func (f *fixture) create(acct uuid.UUID, debit, credit string) ledgersync.EntryOp {
	return ledgersync.EntryOp{Action: ledgersync.ActionCreate, AccountCodeID: acct, Debit: money(debit), Credit: money(credit)}
}

func (f *fixture) seed(t *testing.T, kind vouchers.Kind, in ledgersync.HeaderInput) uuid.UUID {
	t.Helper()
	res, err := f.engine.Sync(context.Background(), author, kind, ledgersync.Batch{Creates: []ledgersync.HeaderInput{in}})
	require.NoError(t, err)
	require.Len(t, res.Created[kind], 1)
	return res.Created[kind][0]
}

func TestSyncCreatesHeaderEntriesAndLogs(t *testing.T) {
	f := newFixture(t)
	in := f.header("JV-0001", f.create(f.cash, "200", "0"), f.create(f.loans, "0", "200"))
	in.Fields = map[string]any{"nature": "adjustment", "checkDate": "2024-03-02"}

	res, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Creates: []ledgersync.HeaderInput{in}})
	require.NoError(t, err)
	require.Len(t, res.Created[vouchers.KindJournalVoucher], 1)
	id := res.Created[vouchers.KindJournalVoucher][0]

	h, ok := f.store.Header(vouchers.KindJournalVoucher, id)
	require.True(t, ok)
	assert.Equal(t, "JV-0001", h.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), h.Date)
	assert.Equal(t, int64(1), h.Version)
	assert.Equal(t, author.ID, h.EncodedBy)
	assert.Equal(t, "adjustment", h.Fields["nature"])
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), h.Fields["checkDate"])

	entries := f.store.EntriesOf(vouchers.KindJournalVoucher, id)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, id, e.HeaderID)
		assert.Equal(t, int64(1), e.Version)
	}

	logs := f.store.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, 3, res.Logs)
	assert.Equal(t, "journal-voucher", logs[0].Resource)
	assert.Equal(t, "journal-voucher-entry", logs[1].Resource)
	for _, l := range logs {
		assert.Equal(t, author.ID, l.Author)
		assert.Equal(t, "cashier", l.Username)
		require.NotNil(t, l.DataID)
	}
	assert.Equal(t, id, *logs[0].DataID)
}

func TestSyncRollsBackWholeBatchOnMissingEntry(t *testing.T) {
	f := newFixture(t)
	in := f.header("EV-0001",
		f.create(f.cash, "0", "500"),
		f.create(f.loans, "500", "0"),
		ledgersync.EntryOp{Action: ledgersync.ActionUpdate, ID: uuid.New(), Version: 1, AccountCodeID: f.cash, Debit: money("1")},
	)

	_, err := f.engine.Sync(context.Background(), author, vouchers.KindExpenseVoucher, ledgersync.Batch{Creates: []ledgersync.HeaderInput{in}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCardinalityMismatch)

	var opErr *ledgersync.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, vouchers.KindExpenseVoucher, opErr.Kind)
	assert.Equal(t, ledgersync.ActionCreate, opErr.Op)
	assert.Equal(t, 0, opErr.Index)

	assert.Zero(t, f.store.HeaderCount(vouchers.KindExpenseVoucher))
	assert.Empty(t, f.store.Logs())
}

func TestSyncAllRollsBackEveryKindTogether(t *testing.T) {
	f := newFixture(t)
	jv := f.header("JV-0002", f.create(f.cash, "10", "0"))
	bad := f.header("AR-0001", f.create(uuid.New(), "10", "0"))

	_, err := f.engine.SyncAll(context.Background(), author, []ledgersync.KindBatch{
		{Kind: vouchers.KindJournalVoucher, Batch: ledgersync.Batch{Creates: []ledgersync.HeaderInput{jv}}},
		{Kind: vouchers.KindAcknowledgementReceipt, Batch: ledgersync.Batch{Creates: []ledgersync.HeaderInput{bad}}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Zero(t, f.store.HeaderCount(vouchers.KindJournalVoucher))
	assert.Zero(t, f.store.HeaderCount(vouchers.KindAcknowledgementReceipt))
	assert.Empty(t, f.store.Logs())
}

func TestSyncRollsBackWhenAuditWriteFails(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("Append", errors.New("activity_logs unavailable"))

	_, err := f.engine.Sync(context.Background(), author, vouchers.KindRelease, ledgersync.Batch{
		Creates: []ledgersync.HeaderInput{f.header("RL-0001", f.create(f.cash, "0", "50"))},
	})
	require.Error(t, err)
	assert.Zero(t, f.store.HeaderCount(vouchers.KindRelease))
}

func TestSyncUpdatesHeaderAndNestedEntries(t *testing.T) {
	f := newFixture(t)
	in := f.header("JV-0003", f.create(f.cash, "100", "0"), f.create(f.loans, "0", "100"))
	in.Fields = map[string]any{"nature": "accrual", "remarks": "first"}
	id := f.seed(t, vouchers.KindJournalVoucher, in)
	entries := f.store.EntriesOf(vouchers.KindJournalVoucher, id)
	require.Len(t, entries, 2)

	patch := ledgersync.HeaderPatch{
		ID:      id,
		Version: 1,
		HeaderInput: ledgersync.HeaderInput{
			Code:   "JV-0003A",
			Date:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Amount: money("150"),
			Fields: map[string]any{"remarks": "second"},
			Entries: []ledgersync.EntryOp{
				f.create(f.loans, "0", "50"),
				{Action: ledgersync.ActionUpdate, ID: entries[0].ID, Version: 1, AccountCodeID: f.cash, Debit: money("150")},
				{Action: ledgersync.ActionDelete, ID: entries[1].ID},
			},
		},
	}
	res, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Updated[vouchers.KindJournalVoucher])
	assert.Equal(t, 4, res.Logs)

	h, _ := f.store.Header(vouchers.KindJournalVoucher, id)
	assert.Equal(t, "JV-0003A", h.Code)
	assert.Equal(t, int64(2), h.Version)
	assert.Equal(t, "accrual", h.Fields["nature"])
	assert.Equal(t, "second", h.Fields["remarks"])

	after := f.store.EntriesOf(vouchers.KindJournalVoucher, id)
	require.Len(t, after, 3)
	assert.True(t, after[0].Debit.Equal(money("150")))
	assert.Equal(t, int64(2), after[0].Version)
	assert.NotNil(t, after[1].DeletedAt)
	assert.True(t, after[2].Active())
}

func TestSyncRejectsStaleHeaderVersion(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, vouchers.KindJournalVoucher, f.header("JV-0004"))

	patch := ledgersync.HeaderPatch{ID: id, Version: 1, HeaderInput: f.header("JV-0004B")}
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.NoError(t, err)

	patch.Code = "JV-0004C"
	_, err = f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.ErrorIs(t, err, shared.ErrStaleVersion)

	h, _ := f.store.Header(vouchers.KindJournalVoucher, id)
	assert.Equal(t, "JV-0004B", h.Code)
}

func TestSyncRejectsStaleEntryVersion(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, vouchers.KindEmergencyLoan, f.header("EL-0001", f.create(f.cash, "0", "30")))
	entry := f.store.EntriesOf(vouchers.KindEmergencyLoan, id)[0]

	patch := ledgersync.HeaderPatch{ID: id, Version: 1, HeaderInput: f.header("EL-0001",
		ledgersync.EntryOp{Action: ledgersync.ActionUpdate, ID: entry.ID, Version: 7, AccountCodeID: f.cash, Credit: money("31")},
	)}
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindEmergencyLoan, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.ErrorIs(t, err, shared.ErrCardinalityMismatch)

	h, _ := f.store.Header(vouchers.KindEmergencyLoan, id)
	assert.Equal(t, int64(1), h.Version)
}

func TestSyncDeleteCascadesToActiveEntries(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, vouchers.KindDamayanFund, f.header("DF-0001", f.create(f.cash, "5", "0"), f.create(f.loans, "0", "5")))
	entries := f.store.EntriesOf(vouchers.KindDamayanFund, id)
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindDamayanFund, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{{
		ID: id, Version: 1,
		HeaderInput: f.header("DF-0001", ledgersync.EntryOp{Action: ledgersync.ActionDelete, ID: entries[0].ID}),
	}}})
	require.NoError(t, err)
	firstDeleted := *f.store.EntriesOf(vouchers.KindDamayanFund, id)[0].DeletedAt

	later := fixedNow.Add(time.Hour)
	f.engine.WithNow(func() time.Time { return later })
	logsBefore := len(f.store.Logs())
	res, err := f.engine.Sync(context.Background(), author, vouchers.KindDamayanFund, ledgersync.Batch{Deletes: []uuid.UUID{id}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Deleted[vouchers.KindDamayanFund])

	h, _ := f.store.Header(vouchers.KindDamayanFund, id)
	require.NotNil(t, h.DeletedAt)
	after := f.store.EntriesOf(vouchers.KindDamayanFund, id)
	assert.Equal(t, firstDeleted, *after[0].DeletedAt)
	require.NotNil(t, after[1].DeletedAt)
	assert.Equal(t, later, *after[1].DeletedAt)

	logs := f.store.Logs()[logsBefore:]
	require.Len(t, logs, 1)
	assert.Equal(t, "damayan-fund", logs[0].Resource)
	assert.Equal(t, id, *logs[0].DataID)

	_, err = f.engine.Sync(context.Background(), author, vouchers.KindDamayanFund, ledgersync.Batch{Deletes: []uuid.UUID{id}})
	assert.ErrorIs(t, err, shared.ErrCardinalityMismatch)
}

func TestSyncDeleteRejectsDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, vouchers.KindRelease, f.header("RL-0002"))
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindRelease, ledgersync.Batch{Deletes: []uuid.UUID{id, id}})
	require.ErrorIs(t, err, shared.ErrCardinalityMismatch)
	h, _ := f.store.Header(vouchers.KindRelease, id)
	assert.Nil(t, h.DeletedAt)
}

func TestSyncUpdateOfDeletedHeaderIsNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, vouchers.KindRelease, f.header("RL-0003"))
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindRelease, ledgersync.Batch{Deletes: []uuid.UUID{id}})
	require.NoError(t, err)
	logsBefore := len(f.store.Logs())

	for _, target := range []uuid.UUID{id, uuid.New()} {
		_, err := f.engine.Sync(context.Background(), author, vouchers.KindRelease, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{{
			ID: target, Version: 1, HeaderInput: f.header("RL-0003"),
		}}})
		require.ErrorIs(t, err, shared.ErrNotFound)

		var opErr *ledgersync.OpError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, ledgersync.ActionUpdate, opErr.Op)
		assert.Equal(t, target, opErr.ID)
	}
	assert.Len(t, f.store.Logs(), logsBefore)
}

func TestSyncRollsBackEarlierCreatesWhenLaterCreateFails(t *testing.T) {
	f := newFixture(t)
	creates := []ledgersync.HeaderInput{
		f.header("EV-0101", f.create(f.cash, "0", "100"), f.create(f.loans, "100", "0")),
		f.header("EV-0102", f.create(f.cash, "0", "250"), f.create(f.loans, "250", "0")),
		f.header("EV-0103",
			f.create(f.cash, "0", "75"),
			ledgersync.EntryOp{Action: ledgersync.ActionDelete, ID: uuid.New()},
		),
	}

	_, err := f.engine.Sync(context.Background(), author, vouchers.KindExpenseVoucher, ledgersync.Batch{Creates: creates})
	require.ErrorIs(t, err, shared.ErrCardinalityMismatch)

	var opErr *ledgersync.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, ledgersync.ActionCreate, opErr.Op)
	assert.Equal(t, 2, opErr.Index)

	assert.Zero(t, f.store.HeaderCount(vouchers.KindExpenseVoucher))
	assert.Empty(t, f.store.Logs())
}

func TestSyncReplacesAttachmentAfterCommit(t *testing.T) {
	f := newFixture(t)
	in := f.header("LR-0001", f.create(f.loans, "1000", "0"))
	in.Attachment = strPtr("clients/old.jpg")
	id := f.seed(t, vouchers.KindLoanRelease, in)

	patch := ledgersync.HeaderPatch{ID: id, Version: 1, HeaderInput: f.header("LR-0001")}
	patch.Attachment = strPtr("clients/new.jpg")
	res, err := f.engine.Sync(context.Background(), author, vouchers.KindLoanRelease, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.NoError(t, err)
	assert.Equal(t, []string{"clients/old.jpg"}, res.Orphaned)
	assert.Equal(t, []string{"clients/old.jpg"}, f.remover.paths)

	h, _ := f.store.Header(vouchers.KindLoanRelease, id)
	require.NotNil(t, h.Attachment)
	assert.Equal(t, "clients/new.jpg", *h.Attachment)

	_, err = f.engine.Sync(context.Background(), author, vouchers.KindLoanRelease, ledgersync.Batch{Deletes: []uuid.UUID{id}})
	require.NoError(t, err)
	assert.Equal(t, []string{"clients/old.jpg", "clients/new.jpg"}, f.remover.paths)
}

func TestSyncKeepsAttachmentWhenPatchOmitsIt(t *testing.T) {
	f := newFixture(t)
	in := f.header("LR-0002")
	in.Attachment = strPtr("clients/keep.jpg")
	id := f.seed(t, vouchers.KindLoanRelease, in)

	_, err := f.engine.Sync(context.Background(), author, vouchers.KindLoanRelease, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{{ID: id, Version: 1, HeaderInput: f.header("LR-0002")}}})
	require.NoError(t, err)
	h, _ := f.store.Header(vouchers.KindLoanRelease, id)
	require.NotNil(t, h.Attachment)
	assert.Equal(t, "clients/keep.jpg", *h.Attachment)
	assert.Empty(t, f.remover.paths)
}

func TestSyncDoesNotRemoveFilesWhenRolledBack(t *testing.T) {
	f := newFixture(t)
	in := f.header("LR-0003")
	in.Attachment = strPtr("clients/a.jpg")
	id := f.seed(t, vouchers.KindLoanRelease, in)

	patch := ledgersync.HeaderPatch{ID: id, Version: 1, HeaderInput: f.header("LR-0003", f.create(uuid.New(), "1", "0"))}
	patch.Attachment = strPtr("")
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindLoanRelease, ledgersync.Batch{Updates: []ledgersync.HeaderPatch{patch}})
	require.Error(t, err)
	assert.Empty(t, f.remover.paths)
}

func TestSyncToleratesRemoverFailure(t *testing.T) {
	f := newFixture(t)
	f.remover.err = errors.New("disk full")
	in := f.header("LR-0004")
	in.Attachment = strPtr("clients/b.jpg")
	id := f.seed(t, vouchers.KindLoanRelease, in)

	_, err := f.engine.Sync(context.Background(), author, vouchers.KindLoanRelease, ledgersync.Batch{Deletes: []uuid.UUID{id}})
	require.NoError(t, err)
	h, _ := f.store.Header(vouchers.KindLoanRelease, id)
	assert.NotNil(t, h.DeletedAt)
}

func TestSyncValidatesBeforeOpeningTransaction(t *testing.T) {
	f := newFixture(t)
	cases := map[string]ledgersync.Batch{
		"missing code":       {Creates: []ledgersync.HeaderInput{{Date: fixedNow}}},
		"negative debit":     {Creates: []ledgersync.HeaderInput{f.header("X", f.create(f.cash, "-1", "0"))}},
		"update without id":  {Updates: []ledgersync.HeaderPatch{{Version: 1, HeaderInput: f.header("X")}}},
		"delete nil":         {Deletes: []uuid.UUID{uuid.Nil}},
		"entry unknown verb": {Creates: []ledgersync.HeaderInput{f.header("X", ledgersync.EntryOp{Action: "upsert"})}},
	}
	for name, batch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, batch)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := f.engine.Sync(context.Background(), author, "unknown", ledgersync.Batch{})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.engine.Sync(context.Background(), activity.Author{}, vouchers.KindJournalVoucher, ledgersync.Batch{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSyncRejectsUnknownHeaderField(t *testing.T) {
	f := newFixture(t)
	in := f.header("JV-0005")
	in.Fields = map[string]any{"clientId": uuid.NewString()}
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Creates: []ledgersync.HeaderInput{in}})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, f.store.HeaderCount(vouchers.KindJournalVoucher))
}

func TestSyncReportsToObserver(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.engine.WithObserver(obs)
	f.seed(t, vouchers.KindJournalVoucher, f.header("JV-0006"))
	_, err := f.engine.Sync(context.Background(), author, vouchers.KindJournalVoucher, ledgersync.Batch{Deletes: []uuid.UUID{uuid.New()}})
	require.Error(t, err)
	assert.Equal(t, []string{"journal-voucher/commit/ok", "journal-voucher/delete/error"}, obs.calls)
}

func TestSyncKeyedAppliesBatchOnce(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.engine.WithGuard(ledgersync.NewIdempotencyGuard(client, time.Hour))

	batches := []ledgersync.KindBatch{{Kind: vouchers.KindJournalVoucher, Batch: ledgersync.Batch{Creates: []ledgersync.HeaderInput{f.header("JV-0007")}}}}
	_, err := f.engine.SyncKeyed(context.Background(), "device-1:42", author, batches)
	require.NoError(t, err)
	_, err = f.engine.SyncKeyed(context.Background(), "device-1:42", author, batches)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	assert.Equal(t, 1, f.store.HeaderCount(vouchers.KindJournalVoucher))
}

func TestSyncKeyedReleasesKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.engine.WithGuard(ledgersync.NewIdempotencyGuard(client, time.Hour))

	batches := []ledgersync.KindBatch{{Kind: vouchers.KindJournalVoucher, Batch: ledgersync.Batch{Creates: []ledgersync.HeaderInput{f.header("JV-0008")}}}}
	f.store.FailNext("InsertHeader", errors.New("connection reset"))
	_, err := f.engine.SyncKeyed(context.Background(), "device-1:43", author, batches)
	require.Error(t, err)
	assert.False(t, mr.Exists(ledgersync.SyncKey("device-1:43")))

	_, err = f.engine.SyncKeyed(context.Background(), "device-1:43", author, batches)
	require.NoError(t, err)
}
