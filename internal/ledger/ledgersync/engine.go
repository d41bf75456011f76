// Package ledgersync applies offline-authored voucher batches atomically with an audit trail.
package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// Repository opens the transaction every sync call runs in.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the voucher store bound to one transaction. Every method is scoped to
// the given source's tables.
type TxRepository interface {
	activity.Sink
	InsertHeader(ctx context.Context, src vouchers.Source, h vouchers.Header) error
	// LockHeader returns an active header and locks it, or shared.ErrNotFound.
	LockHeader(ctx context.Context, src vouchers.Source, id uuid.UUID) (vouchers.Header, error)
	UpdateHeader(ctx context.Context, src vouchers.Source, h vouchers.Header) error
	// HeaderAttachments returns non-empty attachment paths of active headers among ids.
	HeaderAttachments(ctx context.Context, src vouchers.Source, ids []uuid.UUID) (map[uuid.UUID]string, error)
	SoftDeleteHeaders(ctx context.Context, src vouchers.Source, ids []uuid.UUID, at time.Time) (int64, error)
	// SoftDeleteEntriesOf marks still-active entries of the headers deleted.
	SoftDeleteEntriesOf(ctx context.Context, src vouchers.Source, headerIDs []uuid.UUID, at time.Time) (int64, error)
	InsertEntries(ctx context.Context, src vouchers.Source, entries []vouchers.Entry) (int64, error)
	// UpdateEntries matches each entry by (id, header, active, expected version) and
	// reports how many matched.
	UpdateEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, updates []EntryUpdate, at time.Time) (int64, error)
	SoftDeleteEntries(ctx context.Context, src vouchers.Source, headerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	CountActiveAccounts(ctx context.Context, ids []uuid.UUID) (int, error)
}

// AttachmentRemover deletes a stored file. It runs after commit and may fail.
type AttachmentRemover interface {
	Remove(ctx context.Context, path string) error
}

// Observer records sync outcomes.
type Observer interface {
	ObserveSync(kind string, op string, took time.Duration, err error)
}

// Engine reconciles offline batches for every registered voucher type with one
// implementation driven by the registry.
type Engine struct {
	repo     Repository
	registry *vouchers.Registry
	remover  AttachmentRemover
	guard    *IdempotencyGuard
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine constructs the engine. remover may be nil when no source carries attachments.
func NewEngine(repo Repository, registry *vouchers.Registry, remover AttachmentRemover, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = vouchers.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, registry: registry, remover: remover, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// WithGuard enables idempotency keys for SyncKeyed.
func (e *Engine) WithGuard(g *IdempotencyGuard) { e.guard = g }

// WithObserver installs a metrics observer.
func (e *Engine) WithObserver(o Observer) { e.observer = o }

// Sync applies one voucher type's batch in a single transaction.
func (e *Engine) Sync(ctx context.Context, author activity.Author, kind vouchers.Kind, batch Batch) (Result, error) {
	return e.SyncAll(ctx, author, []KindBatch{{Kind: kind, Batch: batch}})
}

// SyncKeyed runs SyncAll at most once per idempotency key. An empty key or a missing
// guard disables the check.
func (e *Engine) SyncKeyed(ctx context.Context, key string, author activity.Author, batches []KindBatch) (Result, error) {
	if e.guard == nil || strings.TrimSpace(key) == "" {
		return e.SyncAll(ctx, author, batches)
	}
	if err := e.guard.Begin(ctx, key); err != nil {
		return Result{}, err
	}
	res, err := e.SyncAll(ctx, author, batches)
	if err != nil {
		if abortErr := e.guard.Abort(ctx, key); abortErr != nil {
			e.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", abortErr))
		}
		return Result{}, err
	}
	if err := e.guard.Complete(ctx, key); err != nil {
		e.logger.Warn("complete idempotency key", slog.String("key", key), slog.Any("error", err))
	}
	return res, nil
}

// SyncAll applies creates, then updates, then deletes for each batch in order, all in one
// transaction. Any failure rolls back every batch of the call.
func (e *Engine) SyncAll(ctx context.Context, author activity.Author, batches []KindBatch) (Result, error) {
	start := time.Now()
	if author.ID == uuid.Nil {
		return Result{}, shared.Validationf("author required")
	}
	type plan struct {
		src vouchers.Source
		KindBatch
	}
	plans := make([]plan, 0, len(batches))
	for _, b := range batches {
		src, ok := e.registry.Lookup(b.Kind)
		if !ok {
			return Result{}, shared.Validationf("unknown voucher type %q", b.Kind)
		}
		if err := validateBatch(src, b.Batch); err != nil {
			return Result{}, err
		}
		plans = append(plans, plan{src: src, KindBatch: b})
	}

	var res Result
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res = newResult()
		run := &txRun{engine: e, tx: tx, author: author, now: e.now(), res: &res}
		for _, p := range plans {
			if err := run.createMany(ctx, p.src, p.Creates); err != nil {
				return err
			}
			if err := run.updateMany(ctx, p.src, p.Updates); err != nil {
				return err
			}
			if err := run.deleteMany(ctx, p.src, p.Deletes); err != nil {
				return err
			}
		}
		return nil
	})
	for _, p := range plans {
		e.observe(string(p.Kind), start, err)
	}
	if err != nil {
		e.logger.Warn("sync batch rolled back", slog.String("author", author.ID.String()), slog.Any("error", err))
		return Result{}, err
	}
	e.cleanup(ctx, res.Orphaned)
	e.logger.Info("sync batch committed", slog.String("author", author.ID.String()), slog.Int("logs", res.Logs))
	return res, nil
}

// cleanup unlinks replaced or deleted attachments after commit. A crash before this runs
// leaves orphan files; the rows are already committed and are not revisited.
func (e *Engine) cleanup(ctx context.Context, paths []string) {
	if e.remover == nil {
		return
	}
	for _, path := range paths {
		if err := e.remover.Remove(ctx, path); err != nil {
			e.logger.Warn("remove attachment", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func (e *Engine) observe(kind string, start time.Time, err error) {
	if e.observer == nil {
		return
	}
	op := "commit"
	var opErr *OpError
	if errors.As(err, &opErr) {
		op = string(opErr.Op)
	}
	e.observer.ObserveSync(kind, op, time.Since(start), err)
}

// txRun carries per-call state through the create/update/delete helpers.
type txRun struct {
	engine *Engine
	tx     TxRepository
	author activity.Author
	now    time.Time
	res    *Result
}

func (r *txRun) log(ctx context.Context, logs ...activity.Log) error {
	if err := r.tx.Append(ctx, logs...); err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	r.res.Logs += len(logs)
	return nil
}

func (r *txRun) createMany(ctx context.Context, src vouchers.Source, inputs []HeaderInput) error {
	for i, in := range inputs {
		fields, err := src.Coerce(in.Fields)
		if err != nil {
			return &OpError{Kind: src.Kind, Op: ActionCreate, Index: i, Err: err}
		}
		h := vouchers.Header{
			ID:             uuid.New(),
			Kind:           src.Kind,
			Code:           strings.TrimSpace(in.Code),
			Date:           vouchers.Day(in.Date),
			BankCode:       in.BankCode,
			CenterRef:      in.CenterRef,
			AccountOfficer: in.AccountOfficer,
			Amount:         in.Amount,
			EncodedBy:      r.author.ID,
			Fields:         fields,
			Version:        1,
			CreatedAt:      r.now,
			UpdatedAt:      r.now,
		}
		if src.Attachments && in.Attachment != nil && *in.Attachment != "" {
			h.Attachment = in.Attachment
		}
		if err := r.createOne(ctx, src, h, in.Entries); err != nil {
			return &OpError{Kind: src.Kind, Op: ActionCreate, Index: i, ID: h.ID, Err: err}
		}
		r.res.Created[src.Kind] = append(r.res.Created[src.Kind], h.ID)
	}
	return nil
}

func (r *txRun) createOne(ctx context.Context, src vouchers.Source, h vouchers.Header, entries []EntryOp) error {
	if err := r.tx.InsertHeader(ctx, src, h); err != nil {
		return err
	}
	if err := r.log(ctx, activity.New(r.author, src.Resource(), fmt.Sprintf("created %s %s", strings.ToLower(src.Label), h.Code), h.ID)); err != nil {
		return err
	}
	return r.applyEntries(ctx, src, h.ID, entries)
}

func (r *txRun) updateMany(ctx context.Context, src vouchers.Source, patches []HeaderPatch) error {
	for i, p := range patches {
		if err := r.updateOne(ctx, src, p); err != nil {
			return &OpError{Kind: src.Kind, Op: ActionUpdate, Index: i, ID: p.ID, Err: err}
		}
		r.res.Updated[src.Kind] = append(r.res.Updated[src.Kind], p.ID)
	}
	return nil
}

func (r *txRun) updateOne(ctx context.Context, src vouchers.Source, p HeaderPatch) error {
	fields, err := src.Coerce(p.Fields)
	if err != nil {
		return err
	}
	cur, err := r.tx.LockHeader(ctx, src, p.ID)
	if err != nil {
		return err
	}
	if cur.Version != p.Version {
		return fmt.Errorf("%w: header at version %d, submitted %d", shared.ErrStaleVersion, cur.Version, p.Version)
	}
	next := cur
	next.Code = strings.TrimSpace(p.Code)
	next.Date = vouchers.Day(p.Date)
	next.BankCode = p.BankCode
	next.CenterRef = p.CenterRef
	next.AccountOfficer = p.AccountOfficer
	next.Amount = p.Amount
	next.Fields = mergeFields(cur.Fields, fields)
	next.Version = cur.Version + 1
	next.UpdatedAt = r.now
	if src.Attachments && p.Attachment != nil {
		old := ""
		if cur.Attachment != nil {
			old = *cur.Attachment
		}
		if *p.Attachment != old {
			if old != "" {
				r.res.Orphaned = append(r.res.Orphaned, old)
			}
			next.Attachment = nil
			if *p.Attachment != "" {
				path := *p.Attachment
				next.Attachment = &path
			}
		}
	}
	if err := r.tx.UpdateHeader(ctx, src, next); err != nil {
		return err
	}
	if err := r.log(ctx, activity.New(r.author, src.Resource(), fmt.Sprintf("updated %s %s", strings.ToLower(src.Label), next.Code), next.ID)); err != nil {
		return err
	}
	return r.applyEntries(ctx, src, next.ID, p.Entries)
}

func (r *txRun) deleteMany(ctx context.Context, src vouchers.Source, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	wrap := func(err error) error {
		return &OpError{Kind: src.Kind, Op: ActionDelete, Index: 0, Err: err}
	}
	var files map[uuid.UUID]string
	if src.Attachments {
		var err error
		if files, err = r.tx.HeaderAttachments(ctx, src, ids); err != nil {
			return wrap(err)
		}
	}
	n, err := r.tx.SoftDeleteHeaders(ctx, src, ids, r.now)
	if err != nil {
		return wrap(err)
	}
	if n != int64(len(ids)) {
		return wrap(shared.CardinalityError(src.Alias+" headers deleted", int64(len(ids)), n))
	}
	if _, err := r.tx.SoftDeleteEntriesOf(ctx, src, ids, r.now); err != nil {
		return wrap(err)
	}
	logs := make([]activity.Log, 0, len(ids))
	for _, id := range ids {
		logs = append(logs, activity.New(r.author, src.Resource(), "deleted "+strings.ToLower(src.Label), id))
		if path, ok := files[id]; ok {
			r.res.Orphaned = append(r.res.Orphaned, path)
		}
	}
	if err := r.log(ctx, logs...); err != nil {
		return wrap(err)
	}
	r.res.Deleted[src.Kind] = append(r.res.Deleted[src.Kind], ids...)
	return nil
}

func mergeFields(cur, patch map[string]any) map[string]any {
	out := make(map[string]any, len(cur)+len(patch))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
