package consolidate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Reader over the voucher tables. Reads run outside any transaction.
func NewRepository(pool *pgxpool.Pool) Reader {
	return &repository{pool: pool}
}

func (r *repository) ActiveEntries(ctx context.Context, src vouchers.Source, accountIDs []uuid.UUID) ([]vouchers.Entry, error) {
	fk := pgx.Identifier{src.ForeignKey}.Sanitize()
	query := fmt.Sprintf(`SELECT id, %s, line, account_code_id, debit, credit, particular, client_ref, version, deleted_at
FROM %s WHERE deleted_at IS NULL AND account_code_id = ANY($1) ORDER BY %s, line, id`,
		fk, pgx.Identifier{src.EntryTable}.Sanitize(), fk)
	rows, err := r.pool.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vouchers.Entry, error) {
		var e vouchers.Entry
		var debit, credit pgtype.Numeric
		if err := row.Scan(&e.ID, &e.HeaderID, &e.Line, &e.AccountCodeID, &debit, &credit, &e.Particular, &e.ClientRef, &e.Version, &e.DeletedAt); err != nil {
			return vouchers.Entry{}, err
		}
		e.Debit, e.Credit = db.Decimal(debit), db.Decimal(credit)
		return e, nil
	})
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	return out, nil
}

func (r *repository) Headers(ctx context.Context, src vouchers.Source, ids []uuid.UUID) ([]vouchers.Header, error) {
	query := fmt.Sprintf(`SELECT id, code, date, account_officer, deleted_at FROM %s WHERE id = ANY($1)`,
		pgx.Identifier{src.HeaderTable}.Sanitize())
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vouchers.Header, error) {
		h := vouchers.Header{Kind: src.Kind}
		err := row.Scan(&h.ID, &h.Code, &h.Date, &h.AccountOfficer, &h.DeletedAt)
		return h, err
	})
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	return out, nil
}
