package ledgertest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

// Balances returns the store as a balances.Repository.
func (s *Store) Balances() balances.Repository { return balanceRepo{s} }

type balanceRepo struct{ s *Store }

func (r balanceRepo) ActiveByYear(_ context.Context, year int) (balances.BeginningBalance, error) {
	var (
		bb    balances.BeginningBalance
		found bool
	)
	r.s.read(func(st *state) {
		for _, b := range st.balances {
			if b.Year == year && b.DeletedAt == nil {
				bb, found = b, true
				return
			}
		}
	})
	if !found {
		return balances.BeginningBalance{}, fmt.Errorf("%w: beginning balance for %d", shared.ErrNotFound, year)
	}
	return bb, nil
}

func (r balanceRepo) WithTx(ctx context.Context, fn func(context.Context, balances.TxRepository) error) error {
	return r.s.run(func(st *state) error {
		return fn(ctx, &balanceTx{store: r.s, st: st})
	})
}

type balanceTx struct {
	store *Store
	st    *state
}

func (t *balanceTx) Append(_ context.Context, logs ...activity.Log) error {
	if err := t.store.failure("Append"); err != nil {
		return err
	}
	return appendLogs(t.st, t.store.now(), logs)
}

func (t *balanceTx) YearTaken(_ context.Context, year int, exclude uuid.UUID) (bool, error) {
	for id, b := range t.st.balances {
		if id != exclude && b.Year == year && b.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (t *balanceTx) GetActiveForUpdate(_ context.Context, id uuid.UUID) (balances.BeginningBalance, error) {
	b, ok := t.st.balances[id]
	if !ok || b.DeletedAt != nil {
		return balances.BeginningBalance{}, fmt.Errorf("%w: beginning balance %s", shared.ErrNotFound, id)
	}
	return b, nil
}

func (t *balanceTx) Insert(_ context.Context, bb balances.BeginningBalance) error {
	if _, ok := t.st.balances[bb.ID]; ok {
		return fmt.Errorf("%w: beginning balance %s", shared.ErrDuplicate, bb.ID)
	}
	t.st.balances[bb.ID] = bb
	return nil
}

func (t *balanceTx) Replace(_ context.Context, bb balances.BeginningBalance) error {
	if _, ok := t.st.balances[bb.ID]; !ok {
		return fmt.Errorf("%w: beginning balance %s", shared.ErrNotFound, bb.ID)
	}
	t.st.balances[bb.ID] = bb
	return nil
}

func (t *balanceTx) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) (int64, error) {
	b, ok := t.st.balances[id]
	if !ok || b.DeletedAt != nil {
		return 0, nil
	}
	deleted := at
	b.DeletedAt = &deleted
	b.UpdatedAt = at
	t.st.balances[id] = b
	return 1, nil
}

func (t *balanceTx) CountActiveAccounts(_ context.Context, ids []uuid.UUID) (int, error) {
	return countActiveAccounts(t.st, ids), nil
}
