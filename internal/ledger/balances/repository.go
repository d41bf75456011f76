package balances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

const selectBalance = `SELECT id, year, entries, encoded_by, created_at, updated_at, deleted_at FROM beginning_balances`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed repository. Lines are stored as a JSONB array.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ActiveByYear(ctx context.Context, year int) (BeginningBalance, error) {
	return getOne(ctx, r.pool, selectBalance+` WHERE deleted_at IS NULL AND year = $1`, year)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, TxSink: activity.NewTxSink(tx, nil)})
	})
	return shared.ClassifyStoreError(err)
}

type txRepository struct {
	*activity.TxSink
	tx pgx.Tx
}

func (r *txRepository) YearTaken(ctx context.Context, year int, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM beginning_balances WHERE deleted_at IS NULL AND year = $1 AND id <> $2)`, year, exclude).Scan(&taken)
	return taken, err
}

func (r *txRepository) GetActiveForUpdate(ctx context.Context, id uuid.UUID) (BeginningBalance, error) {
	return getOne(ctx, r.tx, selectBalance+` WHERE deleted_at IS NULL AND id = $1 FOR UPDATE`, id)
}

func (r *txRepository) Insert(ctx context.Context, bb BeginningBalance) error {
	lines, err := json.Marshal(bb.Entries)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO beginning_balances (id, year, entries, encoded_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		bb.ID, bb.Year, lines, bb.EncodedBy, bb.CreatedAt, bb.UpdatedAt)
	return err
}

func (r *txRepository) Replace(ctx context.Context, bb BeginningBalance) error {
	lines, err := json.Marshal(bb.Entries)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE beginning_balances SET year=$2, entries=$3, updated_at=$4 WHERE id=$1 AND deleted_at IS NULL`,
		bb.ID, bb.Year, lines, bb.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("%w: beginning balance %s", shared.ErrNotFound, bb.ID)
	}
	return nil
}

func (r *txRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE beginning_balances SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) CountActiveAccounts(ctx context.Context, ids []uuid.UUID) (int, error) {
	return accounts.CountActive(ctx, r.tx, ids)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOne(ctx context.Context, q querier, sql string, args ...any) (BeginningBalance, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return BeginningBalance{}, shared.ClassifyStoreError(err)
	}
	bb, err := pgx.CollectExactlyOneRow(rows, scanBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BeginningBalance{}, fmt.Errorf("%w: beginning balance", shared.ErrNotFound)
		}
		return BeginningBalance{}, shared.ClassifyStoreError(err)
	}
	return bb, nil
}

func scanBalance(row pgx.CollectableRow) (BeginningBalance, error) {
	var bb BeginningBalance
	var raw []byte
	if err := row.Scan(&bb.ID, &bb.Year, &raw, &bb.EncodedBy, &bb.CreatedAt, &bb.UpdatedAt, &bb.DeletedAt); err != nil {
		return BeginningBalance{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &bb.Entries); err != nil {
			return BeginningBalance{}, fmt.Errorf("balances: decode entries: %w", err)
		}
	}
	return bb, nil
}
