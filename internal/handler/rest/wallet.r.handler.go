package hrest

import (
	"errors"
	"net/http"

	"escrow-service/internal/domain"
	"escrow-service/shared/response"
	xerrors "escrow-service/shared/utils/errors"

	"github.com/go-chi/chi/v5"
)

func (h *EscrowRestHandler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		wlt, err := h.walletUC.GetOrCreate(r.Context(), actor.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		// re-read through the owner check so the balance is current
		wlt, err = h.walletUC.Get(r.Context(), actor, wlt.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, walletView(wlt))
	})(w, r)
}

func (h *EscrowRestHandler) GetMyLedger(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		wlt, err := h.walletUC.GetOrCreate(r.Context(), actor.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		entries, err := h.walletUC.ListLedger(r.Context(), actor, wlt.ID, limit, offset)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, entries)
	})(w, r)
}

func (h *EscrowRestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		var req AmountRequest
		if err := h.decode(r, &req, false); err != nil {
			h.writeError(w, r, err)
			return
		}
		wlt, err := h.walletUC.GetOrCreate(r.Context(), actor.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		wlt, err = h.walletUC.Withdraw(r.Context(), actor, wlt.ID, req.AmountCents, req.Reference)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, walletView(wlt))
	})(w, r)
}

// ================================
// ADMIN
// ================================

func (h *EscrowRestHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		var req AmountRequest
		if err := h.decode(r, &req, false); err != nil {
			h.writeError(w, r, err)
			return
		}
		wlt, err := h.walletUC.GetOrCreate(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		wlt, err = h.walletUC.Deposit(r.Context(), actor, wlt.ID, req.AmountCents, req.Reference)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, walletView(wlt))
	})(w, r)
}

// Reconcile reports a mismatch in the body instead of failing the request.
func (h *EscrowRestHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		if !actor.IsAdmin() {
			h.writeError(w, r, xerrors.ErrUnauthorized)
			return
		}
		report, err := h.walletUC.Reconcile(r.Context(), chi.URLParam(r, "walletID"))
		if err != nil && !(errors.Is(err, xerrors.ErrInvariantViolation) && report != nil) {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, report)
	})(w, r)
}
