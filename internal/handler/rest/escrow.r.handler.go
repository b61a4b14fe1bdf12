package hrest

import (
	"net/http"

	"escrow-service/internal/domain"
	"escrow-service/internal/usecase/escrow"
	"escrow-service/shared/response"

	"github.com/go-chi/chi/v5"
)

func (h *EscrowRestHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		var req CreateEscrowRequest
		if err := h.decode(r, &req, false); err != nil {
			h.writeError(w, r, err)
			return
		}
		e, err := h.escrowUC.Create(r.Context(), actor, escrow.CreateInput{
			SellerID:    req.SellerID,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			Description: req.Description,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusCreated, escrowView(e))
	})(w, r)
}

func (h *EscrowRestHandler) ListEscrows(w http.ResponseWriter, r *http.Request) {
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
		in := escrow.ListInput{Limit: limit, Offset: offset}
		if in.MinAmountCents, err = queryInt64(r, "min_amount_cents"); err != nil {
			h.writeError(w, r, err)
			return
		}
		if in.MaxAmountCents, err = queryInt64(r, "max_amount_cents"); err != nil {
			h.writeError(w, r, err)
			return
		}
		if in.CreatedFrom, err = queryTime(r, "from", false); err != nil {
			h.writeError(w, r, err)
			return
		}
		if in.CreatedTo, err = queryTime(r, "to", true); err != nil {
			h.writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		in.Status = domain.EscrowStatus(q.Get("status"))
		in.Role = q.Get("role")
		in.Currency = q.Get("currency")
		in.Search = q.Get("search")
		es, err := h.escrowUC.List(r.Context(), actor, in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, escrowViews(es))
	})(w, r)
}

func (h *EscrowRestHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		e, err := h.escrowUC.Get(r.Context(), actor, chi.URLParam(r, "escrowID"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, escrowView(e))
	})(w, r)
}

func (h *EscrowRestHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		trs, err := h.escrowUC.History(r.Context(), actor, chi.URLParam(r, "escrowID"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, trs)
	})(w, r)
}

// ================================
// LIFECYCLE
// ================================

// transitionFn is one lifecycle call without a request body.
type transitionFn func(r *http.Request, actor domain.Actor, escrowID, key string) (*domain.EscrowAgreement, error)

func (h *EscrowRestHandler) lifecycle(fn transitionFn) http.HandlerFunc {
	return h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		e, err := fn(r, actor, chi.URLParam(r, "escrowID"), idempotencyKey(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, escrowView(e))
	})
}

func (h *EscrowRestHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.Fund(r.Context(), actor, id, key)
	})(w, r)
}

func (h *EscrowRestHandler) ShipEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		var req ShipRequest
		if err := h.decode(r, &req, true); err != nil {
			return nil, err
		}
		return h.escrowUC.Ship(r.Context(), actor, id, escrow.ShipInput{TrackingNumber: req.TrackingNumber, Carrier: req.Carrier}, key)
	})(w, r)
}

func (h *EscrowRestHandler) DeliverEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.Deliver(r.Context(), actor, id, key)
	})(w, r)
}

func (h *EscrowRestHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.Release(r.Context(), actor, id, key)
	})(w, r)
}

func (h *EscrowRestHandler) RefundEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		var req RefundRequest
		if err := h.decode(r, &req, true); err != nil {
			return nil, err
		}
		return h.escrowUC.Refund(r.Context(), actor, id, req.Reason, key)
	})(w, r)
}

func (h *EscrowRestHandler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.Cancel(r.Context(), actor, id, key)
	})(w, r)
}

// ================================
// MILESTONES
// ================================

func (h *EscrowRestHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		ms, err := h.escrowUC.ListMilestones(r.Context(), actor, chi.URLParam(r, "escrowID"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, ms)
	})(w, r)
}

func (h *EscrowRestHandler) CreateMilestones(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		var req CreateMilestonesRequest
		if err := h.decode(r, &req, false); err != nil {
			return nil, err
		}
		in := make([]domain.MilestoneInput, 0, len(req.Milestones))
		for _, m := range req.Milestones {
			in = append(in, domain.MilestoneInput{Name: m.Name, Description: m.Description, AmountCents: m.AmountCents})
		}
		return h.escrowUC.CreateMilestones(r.Context(), actor, id, in, key)
	})(w, r)
}

func (h *EscrowRestHandler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.CompleteMilestone(r.Context(), actor, id, chi.URLParam(r, "milestoneID"), key)
	})(w, r)
}

func (h *EscrowRestHandler) ReleaseMilestone(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		return h.escrowUC.ReleaseMilestone(r.Context(), actor, id, chi.URLParam(r, "milestoneID"), key)
	})(w, r)
}

// ================================
// DISPUTES
// ================================

func (h *EscrowRestHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		var req OpenDisputeRequest
		if err := h.decode(r, &req, false); err != nil {
			return nil, err
		}
		return h.escrowUC.OpenDispute(r.Context(), actor, id, escrow.DisputeInput{
			Reason:      domain.DisputeReason(req.Reason),
			Description: req.Description,
		}, key)
	})(w, r)
}

func (h *EscrowRestHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		d, err := h.escrowUC.GetDispute(r.Context(), actor, chi.URLParam(r, "escrowID"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.JSON(w, http.StatusOK, d)
	})(w, r)
}

func (h *EscrowRestHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, actor domain.Actor, id, key string) (*domain.EscrowAgreement, error) {
		var req ResolveDisputeRequest
		if err := h.decode(r, &req, false); err != nil {
			return nil, err
		}
		return h.escrowUC.ResolveDispute(r.Context(), actor, id, domain.Resolution{
			Outcome:          domain.DisputeOutcome(req.Outcome),
			BuyerRefundCents: req.BuyerRefundCents,
			Note:             req.Note,
		}, key)
	})(w, r)
}
