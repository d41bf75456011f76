package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

func TestWithTxDiscardsWorkOnError(t *testing.T) {
	store := NewStore()
	src, _ := vouchers.Default.Lookup(vouchers.KindJournalVoucher)
	id := uuid.New()

	boom := errors.New("boom")
	err := store.Sync().WithTx(context.Background(), func(ctx context.Context, tx ledgersync.TxRepository) error {
		require.NoError(t, tx.InsertHeader(ctx, src, vouchers.Header{ID: id, Code: "JV-1", Date: time.Now()}))
		require.NoError(t, tx.Append(ctx, activity.Log{Activity: "created", Resource: "journal-voucher"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := store.Header(vouchers.KindJournalVoucher, id)
	assert.False(t, ok)
	assert.Empty(t, store.Logs())
}

func TestWithTxPublishesOnSuccess(t *testing.T) {
	store := NewStore()
	src, _ := vouchers.Default.Lookup(vouchers.KindJournalVoucher)
	id := uuid.New()

	err := store.Sync().WithTx(context.Background(), func(ctx context.Context, tx ledgersync.TxRepository) error {
		return tx.InsertHeader(ctx, src, vouchers.Header{ID: id, Code: "JV-1"})
	})
	require.NoError(t, err)
	_, ok := store.Header(vouchers.KindJournalVoucher, id)
	assert.True(t, ok)
}

func TestFailNextFiresOnce(t *testing.T) {
	store := NewStore()
	store.FailNext("GetByIDs", errors.New("down"))

	_, err := store.GetByIDs(context.Background(), nil)
	assert.Error(t, err)
	_, err = store.GetByIDs(context.Background(), nil)
	assert.NoError(t, err)
}
