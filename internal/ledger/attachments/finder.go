package attachments

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
)

// DeletedFinder lists attachment paths of headers soft-deleted within a window.
type DeletedFinder struct {
	pool     *pgxpool.Pool
	registry *vouchers.Registry
}

// NewDeletedFinder binds the finder to the attachment-bearing sources of registry.
func NewDeletedFinder(pool *pgxpool.Pool, registry *vouchers.Registry) *DeletedFinder {
	if registry == nil {
		registry = vouchers.Default
	}
	return &DeletedFinder{pool: pool, registry: registry}
}

// DeletedSince returns the attachments of headers deleted at or after since.
func (f *DeletedFinder) DeletedSince(ctx context.Context, since time.Time) ([]string, error) {
	var out []string
	for _, src := range f.registry.All() {
		if !src.Attachments {
			continue
		}
		query := fmt.Sprintf(`SELECT attachment FROM %s WHERE deleted_at >= $1 AND attachment IS NOT NULL AND attachment <> ''`,
			pgx.Identifier{src.HeaderTable}.Sanitize())
		rows, err := f.pool.Query(ctx, query, since)
		if err != nil {
			return nil, shared.ClassifyStoreError(err)
		}
		paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, shared.ClassifyStoreError(err)
		}
		out = append(out, paths...)
	}
	return out, nil
}
