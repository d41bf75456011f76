package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

func (h *Handler) handleCreateBalance(w http.ResponseWriter, r *http.Request) {
	author, ok := h.author(w, r)
	if !ok {
		return
	}
	var req balanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := h.balances.Create(r.Context(), author, req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newBalanceResponse(bb))
}

func (h *Handler) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	author, ok := h.author(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, shared.Validationf("invalid id"))
		return
	}
	var req balanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bb, err := h.balances.Update(r.Context(), author, id, req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBalanceResponse(bb))
}

func (h *Handler) handleDeleteBalance(w http.ResponseWriter, r *http.Request) {
	author, ok := h.author(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, shared.Validationf("invalid id"))
		return
	}
	if err := h.balances.Delete(r.Context(), author, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCarry(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.fail(w, r, shared.Validationf("invalid year"))
		return
	}
	carried, err := h.balances.Carry(r.Context(), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, carried)
}
