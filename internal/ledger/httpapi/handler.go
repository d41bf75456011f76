// Package httpapi exposes the sync, report and beginning balance operations over JSON.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/balances"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/reports"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// IdempotencyHeader carries the client's batch key.
const IdempotencyHeader = "Idempotency-Key"

// Syncer applies offline batches.
type Syncer interface {
	SyncKeyed(ctx context.Context, key string, author activity.Author, batches []ledgersync.KindBatch) (ledgersync.Result, error)
}

// ReportBuilder produces the ledger reports.
type ReportBuilder interface {
	Activity(ctx context.Context, req reports.Request) (reports.ActivityReport, error)
	AuditTrail(ctx context.Context, req reports.Request) (reports.AuditTrailReport, error)
}

// BalanceManager maintains beginning balances.
type BalanceManager interface {
	Create(ctx context.Context, author activity.Author, in balances.Input) (balances.BeginningBalance, error)
	Update(ctx context.Context, author activity.Author, id uuid.UUID, in balances.Input) (balances.BeginningBalance, error)
	Delete(ctx context.Context, author activity.Author, id uuid.UUID) error
	Carry(ctx context.Context, year int) (map[uuid.UUID]balances.Amount, error)
}

// Handler wires HTTP interactions for the ledger.
type Handler struct {
	logger    *slog.Logger
	syncer    Syncer
	reports   ReportBuilder
	balances  BalanceManager
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
	builds    singleflight.Group
}

// NewHandler constructs the handler. Sync requests are limited to limitPerMinute per
// author; zero disables the limit.
func NewHandler(logger *slog.Logger, syncer Syncer, reportBuilder ReportBuilder, balanceManager BalanceManager, limitPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if limitPerMinute > 0 {
		limiter = httprate.Limit(limitPerMinute, time.Minute, httprate.WithKeyFuncs(limitKey))
	}
	return &Handler{
		logger:    logger,
		syncer:    syncer,
		reports:   reportBuilder,
		balances:  balanceManager,
		validator: validator.New(),
		rateLimit: limiter,
	}
}

func limitKey(r *http.Request) (string, error) {
	if author, ok := AuthorFromContext(r.Context()); ok {
		return "author:" + author.ID.String(), nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}

// MountRoutes registers the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/api/sync", h.handleSyncAll)
		r.Post("/api/sync/{kind}", h.handleSyncKind)
	})
	r.Get("/api/reports/activity", h.handleActivity)
	r.Get("/api/reports/audit-trail", h.handleAuditTrail)
	r.Route("/api/beginning-balances", func(r chi.Router) {
		r.Post("/", h.handleCreateBalance)
		r.Get("/carry/{year}", h.handleCarry)
		r.Put("/{id}", h.handleUpdateBalance)
		r.Delete("/{id}", h.handleDeleteBalance)
	})
}

func (h *Handler) author(w http.ResponseWriter, r *http.Request) (activity.Author, bool) {
	author, ok := AuthorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
	}
	return author, ok
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validate(target)
}

func (h *Handler) validate(target any) error {
	err := h.validator.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.Validationf("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return shared.Validationf("%s", strings.Join(msgs, "; "))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug("ledger request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
