package ledgersync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// applyEntries partitions entry operations by action and runs create, update, then delete
// against headerID.
func (r *txRun) applyEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ops []EntryOp) error {
	if len(ops) == 0 {
		return nil
	}
	var creates, updates, deletes []EntryOp
	referenced := make([]uuid.UUID, 0, len(ops))
	for _, op := range ops {
		switch op.Action {
		case ActionCreate:
			creates = append(creates, op)
			referenced = append(referenced, op.AccountCodeID)
		case ActionUpdate:
			updates = append(updates, op)
			referenced = append(referenced, op.AccountCodeID)
		case ActionDelete:
			deletes = append(deletes, op)
		}
	}
	if err := r.ensureAccounts(ctx, referenced); err != nil {
		return err
	}
	if err := r.createEntries(ctx, src, headerID, creates); err != nil {
		return err
	}
	if err := r.updateEntries(ctx, src, headerID, updates); err != nil {
		return err
	}
	return r.deleteEntries(ctx, src, headerID, deletes)
}

func (r *txRun) ensureAccounts(ctx context.Context, ids []uuid.UUID) error {
	ids = accounts.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	n, err := r.tx.CountActiveAccounts(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return fmt.Errorf("%w: %d of %d referenced accounts", shared.ErrNotFound, len(ids)-n, len(ids))
	}
	return nil
}

func (r *txRun) createEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ops []EntryOp) error {
	if len(ops) == 0 {
		return nil
	}
	entries := make([]vouchers.Entry, 0, len(ops))
	for _, op := range ops {
		entries = append(entries, vouchers.Entry{
			ID:            uuid.New(),
			HeaderID:      headerID,
			Line:          op.Line,
			AccountCodeID: op.AccountCodeID,
			Debit:         op.Debit,
			Credit:        op.Credit,
			Particular:    op.Particular,
			ClientRef:     op.ClientRef,
			Version:       1,
			CreatedAt:     r.now,
			UpdatedAt:     r.now,
		})
	}
	n, err := r.tx.InsertEntries(ctx, src, entries)
	if err != nil {
		return err
	}
	if n != int64(len(entries)) {
		return shared.CardinalityError(src.Alias+" entries inserted", int64(len(entries)), n)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return r.log(ctx, r.entryLogs(src, "created", ids)...)
}

func (r *txRun) updateEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ops []EntryOp) error {
	if len(ops) == 0 {
		return nil
	}
	updates := make([]EntryUpdate, 0, len(ops))
	ids := make([]uuid.UUID, 0, len(ops))
	for _, op := range ops {
		updates = append(updates, EntryUpdate{
			Entry: vouchers.Entry{
				ID:            op.ID,
				HeaderID:      headerID,
				Line:          op.Line,
				AccountCodeID: op.AccountCodeID,
				Debit:         op.Debit,
				Credit:        op.Credit,
				Particular:    op.Particular,
				ClientRef:     op.ClientRef,
				Version:       op.Version + 1,
				UpdatedAt:     r.now,
			},
			ExpectedVersion: op.Version,
		})
		ids = append(ids, op.ID)
	}
	n, err := r.tx.UpdateEntries(ctx, src, headerID, updates, r.now)
	if err != nil {
		return err
	}
	if n != int64(len(updates)) {
		return shared.CardinalityError(src.Alias+" entries updated", int64(len(updates)), n)
	}
	return r.log(ctx, r.entryLogs(src, "updated", ids)...)
}

func (r *txRun) deleteEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ops []EntryOp) error {
	if len(ops) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID)
	}
	n, err := r.tx.SoftDeleteEntries(ctx, src, headerID, ids, r.now)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return shared.CardinalityError(src.Alias+" entries deleted", int64(len(ids)), n)
	}
	return r.log(ctx, r.entryLogs(src, "deleted", ids)...)
}

func (r *txRun) entryLogs(src vouchers.Source, verb string, ids []uuid.UUID) []activity.Log {
	logs := make([]activity.Log, 0, len(ids))
	for _, id := range ids {
		logs = append(logs, activity.New(r.author, src.EntryResource(), fmt.Sprintf("%s %s entry", verb, src.Label), id))
	}
	return logs
}
