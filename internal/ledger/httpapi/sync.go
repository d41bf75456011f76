package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgersync"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

func (h *Handler) handleSyncKind(w http.ResponseWriter, r *http.Request) {
	author, ok := h.author(w, r)
	if !ok {
		return
	}
	kind := vouchers.Kind(chi.URLParam(r, "kind"))
	var req batchRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	batch := ledgersync.KindBatch{Kind: kind, Batch: req.toBatch()}
	h.runSync(w, r, author, []ledgersync.KindBatch{batch})
}

func (h *Handler) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	author, ok := h.author(w, r)
	if !ok {
		return
	}
	var req []kindBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req) == 0 {
		h.fail(w, r, shared.Validationf("at least one batch required"))
		return
	}
	batches := make([]ledgersync.KindBatch, 0, len(req))
	for i := range req {
		if err := h.validate(&req[i]); err != nil {
			h.fail(w, r, err)
			return
		}
		batches = append(batches, req[i].toKindBatch())
	}
	h.runSync(w, r, author, batches)
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, author activity.Author, batches []ledgersync.KindBatch) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	res, err := h.syncer.SyncKeyed(r.Context(), key, author, batches)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("sync applied", slog.String("author", author.Username), slog.Int("logs", res.Logs), slog.Int("orphaned", len(res.Orphaned)))
	httpx.JSON(w, http.StatusOK, newSyncResponse(res))
}
