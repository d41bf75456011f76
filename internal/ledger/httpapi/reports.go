package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/reports"
	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/ledger/vouchers"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "activity", func(ctx context.Context, req reports.Request) (any, error) {
		return h.reports.Activity(ctx, req)
	})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "audit-trail", func(ctx context.Context, req reports.Request) (any, error) {
		return h.reports.AuditTrail(ctx, req)
	})
}

// serveReport collapses concurrent identical requests into one build.
func (h *Handler) serveReport(w http.ResponseWriter, r *http.Request, name string, build func(context.Context, reports.Request) (any, error)) {
	req, err := parseReportQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := name + "?" + canonicalQuery(r.URL.Query())
	ctx := r.Context()
	ch := h.builds.DoChan(key, func() (any, error) {
		return build(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		h.fail(w, r, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			h.fail(w, r, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val)
	}
}

// canonicalQuery sorts values as well as keys. Account selection is order-insensitive
// because Resolve re-sorts accounts by code, so reordered params share one build.
func canonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte('&')
	}
	return b.String()
}

func parseReportQuery(q url.Values) (reports.Request, error) {
	var req reports.Request
	from, err := vouchers.ParseDate(strings.TrimSpace(q.Get("from")))
	if err != nil {
		return req, shared.Validationf("from: %v", err)
	}
	to, err := vouchers.ParseDate(strings.TrimSpace(q.Get("to")))
	if err != nil {
		return req, shared.Validationf("to: %v", err)
	}
	req.From, req.To = from, to
	for _, raw := range q["accounts"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return req, shared.Validationf("accounts: %q is not an id", part)
			}
			req.AccountIDs = append(req.AccountIDs, id)
		}
	}
	req.CodeFrom = strings.TrimSpace(q.Get("codeFrom"))
	req.CodeTo = strings.TrimSpace(q.Get("codeTo"))
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return req, shared.Validationf("year: %q is not a number", raw)
		}
		req.Year = &year
	}
	return req, nil
}
