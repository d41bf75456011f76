package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

const selectAccount = `SELECT id, code, description, classification, nature, parent_group_id, created_at, deleted_at FROM accounts`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed account repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListActive(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, selectAccount+` WHERE deleted_at IS NULL ORDER BY code`)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	return collectAccounts(rows)
}

func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Account, error) {
	rows, err := r.pool.Query(ctx, selectAccount+` WHERE deleted_at IS NULL AND id = ANY($1)`, ids)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	return collectAccounts(rows)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	rows, err := r.pool.Query(ctx, selectAccount+` WHERE deleted_at IS NULL AND upper(code) = $1 LIMIT 1`, code)
	if err != nil {
		return Account{}, shared.ClassifyStoreError(err)
	}
	acc, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: account code %s", shared.ErrNotFound, code)
		}
		return Account{}, shared.ClassifyStoreError(err)
	}
	return acc, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	out, err := pgx.CollectRows(rows, scanAccount)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	return out, nil
}

func scanAccount(row pgx.CollectableRow) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Description, &a.Classification, &a.Nature, &a.ParentGroupID, &a.CreatedAt, &a.DeletedAt)
	return a, err
}

// RowQuerier is satisfied by pgx.Tx and *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CountActive counts how many of the distinct ids reference non-deleted accounts.
func CountActive(ctx context.Context, q RowQuerier, ids []uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE deleted_at IS NULL AND id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return 0, shared.ClassifyStoreError(err)
	}
	return n, nil
}

// UniqueIDs drops duplicates and nil ids, preserving first-seen order.
func UniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
