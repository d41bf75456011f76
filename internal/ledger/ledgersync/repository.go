package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

var headerColumns = []string{"id", "code", "date", "bank_code", "center_ref", "account_officer", "amount", "encoded_by", "version", "created_at", "updated_at", "deleted_at"}

var entryColumns = []string{"id", "line", "account_code_id", "debit", "credit", "particular", "client_ref", "version", "created_at", "updated_at"}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed sync repository. Table and column names come
// from the registry and are quoted as identifiers.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
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

func ident(name string) string { return pgx.Identifier{name}.Sanitize() }

func columnsFor(src vouchers.Source) []string {
	cols := append([]string{}, headerColumns...)
	if src.Attachments {
		cols = append(cols, "attachment")
	}
	for _, f := range src.Fields {
		cols = append(cols, f.Column)
	}
	return cols
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}

func fieldArg(f vouchers.Field, v any) any {
	if v == nil {
		return nil
	}
	if d, ok := v.(decimal.Decimal); ok && f.Type == vouchers.FieldDecimal {
		return db.Numeric(d)
	}
	return v
}

func (r *txRepository) InsertHeader(ctx context.Context, src vouchers.Source, h vouchers.Header) error {
	cols := columnsFor(src)
	args := []any{h.ID, h.Code, h.Date, h.BankCode, h.CenterRef, h.AccountOfficer, db.Numeric(h.Amount), h.EncodedBy, h.Version, h.CreatedAt, h.UpdatedAt, nil}
	if src.Attachments {
		args = append(args, h.Attachment)
	}
	for _, f := range src.Fields {
		args = append(args, fieldArg(f, h.Fields[f.Name]))
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, ident(src.HeaderTable), quoteAll(cols), strings.Join(placeholders, ","))
	_, err := r.tx.Exec(ctx, query, args...)
	return shared.ClassifyStoreError(err)
}

func (r *txRepository) LockHeader(ctx context.Context, src vouchers.Source, id uuid.UUID) (vouchers.Header, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, quoteAll(columnsFor(src)), ident(src.HeaderTable))
	h := vouchers.Header{Kind: src.Kind}
	var amount pgtype.Numeric
	dest := []any{&h.ID, &h.Code, &h.Date, &h.BankCode, &h.CenterRef, &h.AccountOfficer, &amount, &h.EncodedBy, &h.Version, &h.CreatedAt, &h.UpdatedAt, &h.DeletedAt}
	if src.Attachments {
		dest = append(dest, &h.Attachment)
	}
	fieldDest := make([]any, len(src.Fields))
	for i, f := range src.Fields {
		fieldDest[i] = newFieldDest(f)
	}
	dest = append(dest, fieldDest...)
	if err := r.tx.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vouchers.Header{}, fmt.Errorf("%w: %s %s", shared.ErrNotFound, src.Alias, id)
		}
		return vouchers.Header{}, shared.ClassifyStoreError(err)
	}
	h.Amount = db.Decimal(amount)
	h.Fields = make(map[string]any, len(src.Fields))
	for i, f := range src.Fields {
		if v := fieldValue(f, fieldDest[i]); v != nil {
			h.Fields[f.Name] = v
		}
	}
	return h, nil
}

func newFieldDest(f vouchers.Field) any {
	switch f.Type {
	case vouchers.FieldDecimal:
		return new(pgtype.Numeric)
	case vouchers.FieldDate:
		return new(*time.Time)
	case vouchers.FieldInt:
		return new(*int64)
	case vouchers.FieldUUID:
		return new(*uuid.UUID)
	default:
		return new(*string)
	}
}

func fieldValue(f vouchers.Field, dest any) any {
	switch v := dest.(type) {
	case *pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		return db.Decimal(*v)
	case **time.Time:
		if *v == nil {
			return nil
		}
		return **v
	case **int64:
		if *v == nil {
			return nil
		}
		return **v
	case **uuid.UUID:
		if *v == nil {
			return nil
		}
		return **v
	case **string:
		if *v == nil {
			return nil
		}
		return **v
	}
	return nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, src vouchers.Source, h vouchers.Header) error {
	sets := []string{"code", "date", "bank_code", "center_ref", "account_officer", "amount", "version", "updated_at"}
	args := []any{h.ID, h.Code, h.Date, h.BankCode, h.CenterRef, h.AccountOfficer, db.Numeric(h.Amount), h.Version, h.UpdatedAt}
	if src.Attachments {
		sets = append(sets, "attachment")
		args = append(args, h.Attachment)
	}
	for _, f := range src.Fields {
		sets = append(sets, f.Column)
		args = append(args, fieldArg(f, h.Fields[f.Name]))
	}
	assignments := make([]string, len(sets))
	for i, col := range sets {
		assignments[i] = fmt.Sprintf("%s = $%d", ident(col), i+2)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND deleted_at IS NULL`, ident(src.HeaderTable), strings.Join(assignments, ", "))
	cmd, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return shared.ClassifyStoreError(err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, src.Alias, h.ID)
	}
	return nil
}

func (r *txRepository) HeaderAttachments(ctx context.Context, src vouchers.Source, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	if !src.Attachments {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT id, attachment FROM %s WHERE id = ANY($1) AND deleted_at IS NULL AND attachment IS NOT NULL AND attachment <> ''`, ident(src.HeaderTable))
	rows, err := r.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, shared.ClassifyStoreError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		out[id] = path
	}
	return out, rows.Err()
}

func (r *txRepository) SoftDeleteHeaders(ctx context.Context, src vouchers.Source, ids []uuid.UUID, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, updated_at = $2 WHERE id = ANY($1) AND deleted_at IS NULL`, ident(src.HeaderTable))
	cmd, err := r.tx.Exec(ctx, query, ids, at)
	if err != nil {
		return 0, shared.ClassifyStoreError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) SoftDeleteEntriesOf(ctx context.Context, src vouchers.Source, headerIDs []uuid.UUID, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, updated_at = $2 WHERE %s = ANY($1) AND deleted_at IS NULL`, ident(src.EntryTable), ident(src.ForeignKey))
	cmd, err := r.tx.Exec(ctx, query, headerIDs, at)
	if err != nil {
		return 0, shared.ClassifyStoreError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) InsertEntries(ctx context.Context, src vouchers.Source, entries []vouchers.Entry) (int64, error) {
	cols := append([]string{src.ForeignKey}, entryColumns...)
	n, err := r.tx.CopyFrom(ctx, pgx.Identifier{src.EntryTable}, cols, pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
		e := entries[i]
		return []any{e.HeaderID, e.ID, int32(e.Line), e.AccountCodeID, db.Numeric(e.Debit), db.Numeric(e.Credit), e.Particular, e.ClientRef, e.Version, e.CreatedAt, e.UpdatedAt}, nil
	}))
	if err != nil {
		return 0, shared.ClassifyStoreError(err)
	}
	return n, nil
}

func (r *txRepository) UpdateEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, updates []EntryUpdate, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET line = $3, account_code_id = $4, debit = $5, credit = $6, particular = $7, client_ref = $8, version = $9, updated_at = $10
WHERE id = $1 AND %s = $2 AND deleted_at IS NULL AND version = $11`, ident(src.EntryTable), ident(src.ForeignKey))
	batch := &pgx.Batch{}
	for _, u := range updates {
		e := u.Entry
		batch.Queue(query, e.ID, headerID, int32(e.Line), e.AccountCodeID, db.Numeric(e.Debit), db.Numeric(e.Credit), e.Particular, e.ClientRef, e.Version, at, u.ExpectedVersion)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	var matched int64
	for range updates {
		cmd, err := results.Exec()
		if err != nil {
			return 0, shared.ClassifyStoreError(err)
		}
		matched += cmd.RowsAffected()
	}
	return matched, nil
}

func (r *txRepository) SoftDeleteEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $3, updated_at = $3 WHERE id = ANY($1) AND %s = $2 AND deleted_at IS NULL`, ident(src.EntryTable), ident(src.ForeignKey))
	cmd, err := r.tx.Exec(ctx, query, ids, headerID, at)
	if err != nil {
		return 0, shared.ClassifyStoreError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) CountActiveAccounts(ctx context.Context, ids []uuid.UUID) (int, error) {
	return accounts.CountActive(ctx, r.tx, ids)
}
