// Package balances carries per-year opening balances into ledger reports.
package balances

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

const resource = "beginning-balance"

// Repository reads beginning balances and opens transactions for mutations.
type Repository interface {
	ActiveByYear(ctx context.Context, year int) (BeginningBalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside one transaction.
type TxRepository interface {
	activity.Sink
	YearTaken(ctx context.Context, year int, exclude uuid.UUID) (bool, error)
	GetActiveForUpdate(ctx context.Context, id uuid.UUID) (BeginningBalance, error)
	Insert(ctx context.Context, bb BeginningBalance) error
	Replace(ctx context.Context, bb BeginningBalance) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	CountActiveAccounts(ctx context.Context, ids []uuid.UUID) (int, error)
}

// Service implements the beginning balance carrier and its transactional maintenance.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Carry returns the opening amounts per account for year. Repeated lines for the same
// account are summed. It fails with shared.ErrNotFound when the year has no balance.
func (s *Service) Carry(ctx context.Context, year int) (map[uuid.UUID]Amount, error) {
	bb, err := s.repo.ActiveByYear(ctx, year)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Amount, len(bb.Entries))
	for _, line := range bb.Entries {
		cur := out[line.AccountCodeID]
		cur.Debit = cur.Debit.Add(line.Debit)
		cur.Credit = cur.Credit.Add(line.Credit)
		out[line.AccountCodeID] = cur
	}
	return out, nil
}

// Create stores a beginning balance for a year that has none.
func (s *Service) Create(ctx context.Context, author activity.Author, in Input) (BeginningBalance, error) {
	if err := validate(in); err != nil {
		return BeginningBalance{}, err
	}
	now := s.now()
	bb := BeginningBalance{
		ID:        uuid.New(),
		Year:      in.Year,
		Entries:   in.Entries,
		EncodedBy: author.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.YearTaken(ctx, in.Year, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: beginning balance for %d", shared.ErrDuplicate, in.Year)
		}
		if err := ensureAccounts(ctx, tx, in.Entries); err != nil {
			return err
		}
		if err := tx.Insert(ctx, bb); err != nil {
			return err
		}
		return tx.Append(ctx, activity.New(author, resource, "created beginning balance "+strconv.Itoa(in.Year), bb.ID))
	})
	if err != nil {
		return BeginningBalance{}, err
	}
	s.logger.Info("beginning balance created", slog.Int("year", bb.Year), slog.String("id", bb.ID.String()))
	return bb, nil
}

// Update replaces the year and lines of an active beginning balance.
func (s *Service) Update(ctx context.Context, author activity.Author, id uuid.UUID, in Input) (BeginningBalance, error) {
	if err := validate(in); err != nil {
		return BeginningBalance{}, err
	}
	var updated BeginningBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetActiveForUpdate(ctx, id)
		if err != nil {
			return err
		}
		taken, err := tx.YearTaken(ctx, in.Year, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: beginning balance for %d", shared.ErrDuplicate, in.Year)
		}
		if err := ensureAccounts(ctx, tx, in.Entries); err != nil {
			return err
		}
		current.Year = in.Year
		current.Entries = in.Entries
		current.UpdatedAt = s.now()
		if err := tx.Replace(ctx, current); err != nil {
			return err
		}
		updated = current
		return tx.Append(ctx, activity.New(author, resource, "updated beginning balance "+strconv.Itoa(in.Year), id))
	})
	if err != nil {
		return BeginningBalance{}, err
	}
	return updated, nil
}

// Delete soft-deletes an active beginning balance.
func (s *Service) Delete(ctx context.Context, author activity.Author, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.SoftDelete(ctx, id, s.now())
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%w: beginning balance %s", shared.ErrNotFound, id)
		}
		return tx.Append(ctx, activity.New(author, resource, "deleted beginning balance", id))
	})
}

func validate(in Input) error {
	if in.Year < 1900 || in.Year > 9999 {
		return shared.Validationf("year %d out of range", in.Year)
	}
	for i, line := range in.Entries {
		if line.AccountCodeID == uuid.Nil {
			return shared.Validationf("line %d missing account", i)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Validationf("line %d negative amount", i)
		}
	}
	return nil
}

func ensureAccounts(ctx context.Context, tx TxRepository, lines []Line) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountCodeID)
	}
	ids = accounts.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	n, err := tx.CountActiveAccounts(ctx, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return fmt.Errorf("%w: %d of %d accounts", shared.ErrNotFound, len(ids)-n, len(ids))
	}
	return nil
}
