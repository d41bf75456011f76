package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/accounts"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/consolidate"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

// Request selects accounts and a date window. AccountIDs wins over the code range.
type Request struct {
	AccountIDs []uuid.UUID
	CodeFrom   string
	CodeTo     string
	From       time.Time
	To         time.Time
	// Year, when set, prepends that fiscal year's beginning balance.
	Year *int
}

// AccountResolver is the account directory view used by reports.
type AccountResolver interface {
	Resolve(ctx context.Context, ids []uuid.UUID) ([]accounts.Account, error)
	ResolveRange(ctx context.Context, from, to string) ([]accounts.Account, error)
}

// Consolidator produces per-account entries.
type Consolidator interface {
	Consolidate(ctx context.Context, accountIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]consolidate.Entry, error)
}

// Carrier supplies beginning balances.
type Carrier interface {
	Carry(ctx context.Context, year int) (map[uuid.UUID]balances.Amount, error)
}

// Observer records report build timings.
type Observer interface {
	ObserveReport(name string, took time.Duration, err error)
}

// Service loads report input once and hands it to the assemblers.
type Service struct {
	accounts     AccountResolver
	consolidator Consolidator
	carrier      Carrier
	observer     Observer
	logger       *slog.Logger
}

// NewService constructs the report service.
func NewService(accts AccountResolver, consolidator Consolidator, carrier Carrier, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accts, consolidator: consolidator, carrier: carrier, observer: observer, logger: logger}
}

// Activity builds the account-grouped report.
func (s *Service) Activity(ctx context.Context, req Request) (report ActivityReport, err error) {
	defer s.observe("activity", time.Now(), &err)
	in, err := s.Load(ctx, req)
	if err != nil {
		return ActivityReport{}, err
	}
	return BuildActivityReport(in), nil
}

// AuditTrail builds the transaction-first report.
func (s *Service) AuditTrail(ctx context.Context, req Request) (report AuditTrailReport, err error) {
	defer s.observe("audit_trail", time.Now(), &err)
	in, err := s.Load(ctx, req)
	if err != nil {
		return AuditTrailReport{}, err
	}
	return BuildAuditTrail(in), nil
}

// Load validates the request and gathers assembler input.
func (s *Service) Load(ctx context.Context, req Request) (Input, error) {
	if req.From.IsZero() || req.To.IsZero() {
		return Input{}, shared.Validationf("date window required")
	}
	if req.From.After(req.To) {
		return Input{}, shared.Validationf("date from %s is after to %s", req.From.Format(time.DateOnly), req.To.Format(time.DateOnly))
	}
	var (
		accts []accounts.Account
		err   error
	)
	if len(req.AccountIDs) > 0 {
		accts, err = s.accounts.Resolve(ctx, accounts.UniqueIDs(req.AccountIDs))
	} else {
		accts, err = s.accounts.ResolveRange(ctx, req.CodeFrom, req.CodeTo)
	}
	if err != nil {
		return Input{}, err
	}
	ids := make([]uuid.UUID, 0, len(accts))
	for _, a := range accts {
		ids = append(ids, a.ID)
	}
	entries, err := s.consolidator.Consolidate(ctx, ids, req.From, req.To)
	if err != nil {
		return Input{}, err
	}
	in := Input{From: req.From, To: req.To, Accounts: accts, Entries: entries}
	if req.Year != nil {
		carried, err := s.carrier.Carry(ctx, *req.Year)
		if err != nil {
			return Input{}, err
		}
		in.Beginning = carried
	}
	return in, nil
}

func (s *Service) observe(name string, start time.Time, errp *error) {
	took := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveReport(name, took, *errp)
	}
	if *errp != nil {
		s.logger.Warn("report failed", slog.String("report", name), slog.Any("error", *errp))
	}
}
