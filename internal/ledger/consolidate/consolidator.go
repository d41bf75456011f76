// Package consolidate merges the voucher entry sources into one per-account ledger view.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// Entry is the canonical ledger row produced from any voucher source.
type Entry struct {
	Date        time.Time
	Doc         string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Particular  string
	AcctOfficer string
	Source      string
	HeaderID    uuid.UUID
	EntryID     uuid.UUID
}

// Reader loads raw rows for one source.
type Reader interface {
	// ActiveEntries returns non-deleted entries posted to any of accountIDs.
	ActiveEntries(ctx context.Context, src vouchers.Source, accountIDs []uuid.UUID) ([]vouchers.Entry, error)
	// Headers returns the headers with the given ids, soft-deleted ones included.
	Headers(ctx context.Context, src vouchers.Source, ids []uuid.UUID) ([]vouchers.Header, error)
}

// Consolidator fans out over every registered source and merges the results.
type Consolidator struct {
	reader   Reader
	registry *vouchers.Registry
	// parallel bounds concurrent source reads; zero means one per source.
	parallel int
}

// New constructs a Consolidator.
func New(reader Reader, registry *vouchers.Registry) *Consolidator {
	if registry == nil {
		registry = vouchers.Default
	}
	return &Consolidator{reader: reader, registry: registry}
}

// WithParallelism caps concurrent source reads.
func (c *Consolidator) WithParallelism(n int) *Consolidator {
	c.parallel = n
	return c
}

type posting struct {
	account uuid.UUID
	entry   Entry
}

// Consolidate returns, for every requested account, its entries dated within [from, to]
// inclusive. Each source's rows are sorted by date and the sources are concatenated in
// registry order; the merged sequence is not re-sorted across sources. Callers must reject
// from > to beforehand.
func (c *Consolidator) Consolidate(ctx context.Context, accountIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]Entry, error) {
	result := make(map[uuid.UUID][]Entry, len(accountIDs))
	ids := make([]uuid.UUID, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, seen := result[id]; seen {
			continue
		}
		result[id] = []Entry{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return result, nil
	}

	sources := c.registry.All()
	perSource := make([][]posting, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	if c.parallel > 0 {
		g.SetLimit(c.parallel)
	}
	for i, src := range sources {
		g.Go(func() error {
			rows, err := c.collect(gctx, src, ids, vouchers.Day(from), vouchers.Day(to))
			if err != nil {
				return fmt.Errorf("consolidate %s: %w", src.Alias, err)
			}
			perSource[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rows := range perSource {
		for _, p := range rows {
			result[p.account] = append(result[p.account], p.entry)
		}
	}
	return result, nil
}

func (c *Consolidator) collect(ctx context.Context, src vouchers.Source, accountIDs []uuid.UUID, from, to time.Time) ([]posting, error) {
	entries, err := c.reader.ActiveEntries(ctx, src, accountIDs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	headerIDs := make([]uuid.UUID, 0, len(entries))
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.HeaderID]; ok {
			continue
		}
		seen[e.HeaderID] = struct{}{}
		headerIDs = append(headerIDs, e.HeaderID)
	}
	headers, err := c.reader.Headers(ctx, src, headerIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]vouchers.Header, len(headers))
	for _, h := range headers {
		byID[h.ID] = h
	}

	rows := make([]posting, 0, len(entries))
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		h, ok := byID[e.HeaderID]
		if !ok || !h.Active() {
			continue
		}
		day := vouchers.Day(h.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		rows = append(rows, posting{account: e.AccountCodeID, entry: project(src, h, e)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].entry.Date.Before(rows[j].entry.Date)
	})
	return rows, nil
}

func project(src vouchers.Source, h vouchers.Header, e vouchers.Entry) Entry {
	out := Entry{
		Date:     vouchers.Day(h.Date),
		Doc:      h.Code,
		Debit:    e.Debit,
		Credit:   e.Credit,
		Source:   src.Alias,
		HeaderID: h.ID,
		EntryID:  e.ID,
	}
	if e.Particular != nil {
		out.Particular = *e.Particular
	}
	if h.AccountOfficer != nil {
		out.AcctOfficer = *h.AccountOfficer
	}
	return out
}
