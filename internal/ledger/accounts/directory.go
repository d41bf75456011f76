package accounts

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

// Repository reads the chart of accounts. Implementations only return non-deleted rows.
type Repository interface {
	ListActive(ctx context.Context) ([]Account, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
}

// Directory is the read-only account lookup used by reports and sync validation.
type Directory struct {
	repo Repository
}

// NewDirectory constructs the directory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// Get returns one active account.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	found, err := d.repo.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return Account{}, err
	}
	if len(found) == 0 {
		return Account{}, fmt.Errorf("%w: account %s", shared.ErrNotFound, id)
	}
	return found[0], nil
}

// ByCode returns the active account with the given code, matched case-insensitively.
func (d *Directory) ByCode(ctx context.Context, code string) (Account, error) {
	return d.repo.GetByCode(ctx, NormalizeCode(code))
}

// Resolve loads the active accounts among ids, ordered by code. Unknown ids are skipped.
func (d *Directory) Resolve(ctx context.Context, ids []uuid.UUID) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := d.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	SortByCode(found)
	return found, nil
}

// ResolveRange returns active accounts whose code lies within [from, to] using numeric-aware
// ordering, so "1010" < "1100" and "2-10" sorts after "2-9". Empty bounds are open.
func (d *Directory) ResolveRange(ctx context.Context, from, to string) ([]Account, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	c := newCollator()
	if from != "" && to != "" && c.CompareString(from, to) > 0 {
		return nil, shared.Validationf("account range %s..%s is inverted", from, to)
	}
	all, err := d.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, acc := range all {
		code := NormalizeCode(acc.Code)
		if from != "" && c.CompareString(code, from) < 0 {
			continue
		}
		if to != "" && c.CompareString(code, to) > 0 {
			continue
		}
		out = append(out, acc)
	}
	sortWith(c, out)
	return out, nil
}

// SortByCode orders accounts by code with numeric-aware collation.
func SortByCode(accs []Account) {
	sortWith(newCollator(), accs)
}

// CompareCodes compares two codes the way SortByCode orders them.
func CompareCodes(a, b string) int {
	return newCollator().CompareString(NormalizeCode(a), NormalizeCode(b))
}

func sortWith(c *collate.Collator, accs []Account) {
	sort.SliceStable(accs, func(i, j int) bool {
		return c.CompareString(NormalizeCode(accs[i].Code), NormalizeCode(accs[j].Code)) < 0
	})
}

// Collators keep internal buffers, so each call gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}
