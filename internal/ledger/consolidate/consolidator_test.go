package consolidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func put(store *ledgertest.Store, kind vouchers.Kind, code string, date time.Time, account uuid.UUID, debit int64) (vouchers.Header, vouchers.Entry) {
	officer := "officer-" + code
	h := vouchers.Header{ID: uuid.New(), Kind: kind, Code: code, Date: date, AccountOfficer: &officer, Version: 1}
	particular := "p-" + code
	e := vouchers.Entry{ID: uuid.New(), HeaderID: h.ID, AccountCodeID: account, Debit: decimal.NewFromInt(debit), Credit: decimal.Zero, Particular: &particular, Version: 1}
	store.PutHeader(h)
	store.PutEntry(kind, e)
	return h, e
}

func TestConsolidateCoversEverySource(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	for i, src := range vouchers.Default.All() {
		put(store, src.Kind, string(src.Kind), day(2024, 3, 10-i), acct, int64(i+1))
	}

	got, err := New(store, nil).Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	rows := got[acct]
	require.Len(t, rows, vouchers.Default.Len())
	for i, src := range vouchers.Default.All() {
		assert.Equal(t, src.Alias, rows[i].Source, "registry order")
		assert.Equal(t, string(src.Kind), rows[i].Doc)
		assert.Equal(t, "officer-"+string(src.Kind), rows[i].AcctOfficer)
		assert.Equal(t, "p-"+string(src.Kind), rows[i].Particular)
	}
	assert.True(t, rows[0].Date.After(rows[1].Date), "sources are concatenated, not globally sorted")
}

func TestConsolidateWindowIsInclusive(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	put(store, vouchers.KindJournalVoucher, "before", day(2023, 12, 31), acct, 1)
	put(store, vouchers.KindJournalVoucher, "first", day(2024, 1, 1), acct, 2)
	put(store, vouchers.KindJournalVoucher, "last", time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC), acct, 3)
	put(store, vouchers.KindJournalVoucher, "after", day(2024, 2, 1), acct, 4)

	got, err := New(store, nil).Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, got[acct], 2)
	assert.Equal(t, "first", got[acct][0].Doc)
	assert.Equal(t, "last", got[acct][1].Doc)
	assert.Equal(t, day(2024, 1, 31), got[acct][1].Date)
}

func TestConsolidateSortsWithinSourceStably(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	put(store, vouchers.KindExpenseVoucher, "late", day(2024, 5, 2), acct, 1)
	put(store, vouchers.KindExpenseVoucher, "early-a", day(2024, 5, 1), acct, 2)
	put(store, vouchers.KindExpenseVoucher, "early-b", day(2024, 5, 1), acct, 3)

	got, err := New(store, nil).Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 5, 1), day(2024, 5, 31))
	require.NoError(t, err)
	docs := []string{}
	for _, e := range got[acct] {
		docs = append(docs, e.Doc)
	}
	assert.Equal(t, []string{"early-a", "early-b", "late"}, docs)
}

func TestConsolidateSkipsDeletedRows(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	deletedAt := day(2024, 6, 1)

	h, _ := put(store, vouchers.KindRelease, "dead-header", day(2024, 4, 1), acct, 1)
	h.DeletedAt = &deletedAt
	store.PutHeader(h)

	_, e := put(store, vouchers.KindRelease, "live-header", day(2024, 4, 2), acct, 2)
	dead := e
	dead.ID = uuid.New()
	dead.DeletedAt = &deletedAt
	store.PutEntry(vouchers.KindRelease, dead)

	orphan := vouchers.Entry{ID: uuid.New(), HeaderID: uuid.New(), AccountCodeID: acct, Debit: decimal.NewFromInt(9), Version: 1}
	store.PutEntry(vouchers.KindRelease, orphan)

	got, err := New(store, nil).Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	require.Len(t, got[acct], 1)
	assert.Equal(t, "live-header", got[acct][0].Doc)
	assert.Equal(t, e.ID, got[acct][0].EntryID)
}

func TestConsolidateGroupsByAccountAndKeepsEmptyAccounts(t *testing.T) {
	store := ledgertest.NewStore()
	cash := store.AddAccount("1010", "Cash").ID
	bank := store.AddAccount("1020", "Bank").ID
	idle := store.AddAccount("1030", "Idle").ID
	put(store, vouchers.KindAcknowledgementReceipt, "or-1", day(2024, 2, 1), cash, 5)
	put(store, vouchers.KindAcknowledgementReceipt, "or-2", day(2024, 2, 2), bank, 6)
	unknown := uuid.New()

	got, err := New(store, nil).WithParallelism(2).Consolidate(context.Background(), []uuid.UUID{cash, bank, idle, unknown, cash}, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Len(t, got[cash], 1)
	assert.Len(t, got[bank], 1)
	assert.NotNil(t, got[idle])
	assert.Empty(t, got[idle])
	assert.Empty(t, got[unknown])
}

func TestConsolidateIsRepeatable(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	put(store, vouchers.KindDamayanFund, "df-1", day(2024, 7, 1), acct, 1)
	put(store, vouchers.KindLoanRelease, "lr-1", day(2024, 7, 1), acct, 2)
	c := New(store, nil)

	first, err := c.Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 7, 1), day(2024, 7, 1))
	require.NoError(t, err)
	second, err := c.Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 7, 1), day(2024, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConsolidatePropagatesSourceFailure(t *testing.T) {
	store := ledgertest.NewStore()
	acct := store.AddAccount("1010", "Cash").ID
	store.FailNext("ActiveEntries:"+string(vouchers.KindEmergencyLoan), errors.New("timeout"))

	_, err := New(store, nil).Consolidate(context.Background(), []uuid.UUID{acct}, day(2024, 1, 1), day(2024, 1, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emergencyLoan")
}

func TestConsolidateWithNoAccounts(t *testing.T) {
	got, err := New(ledgertest.NewStore(), nil).Consolidate(context.Background(), nil, day(2024, 1, 1), day(2024, 1, 2))
	require.NoError(t, err)
	assert.Empty(t, got)
}
