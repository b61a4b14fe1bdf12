package hrest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/pub"
	"escrow-service/internal/usecase/escrow"
	"escrow-service/internal/usecase/wallet"
	"escrow-service/shared/auth/middleware"
	"escrow-service/shared/response"
	xerrors "escrow-service/shared/utils/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	minorExponent     = 2
)

type EscrowRestHandler struct {
	escrowUC *escrow.Service
	walletUC *wallet.Service
	notifier *pub.Notifier
	validate *validator.Validate
	logger   *zap.Logger
}

func NewEscrowRestHandler(escrowUC *escrow.Service, walletUC *wallet.Service, notifier *pub.Notifier, logger *zap.Logger) *EscrowRestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = pub.NewNotifier(logger)
	}
	return &EscrowRestHandler{
		escrowUC: escrowUC,
		walletUC: walletUC,
		notifier: notifier,
		validate: newValidator(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the authenticated API. requireAdmin guards the
// operator endpoints.
func (h *EscrowRestHandler) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/escrows", func(r chi.Router) {
		r.Post("/", h.CreateEscrow)
		r.Get("/", h.ListEscrows)

		r.Route("/{escrowID}", func(r chi.Router) {
			r.Get("/", h.GetEscrow)
			r.Get("/history", h.GetHistory)
			r.Put("/fund", h.FundEscrow)
			r.Put("/ship", h.ShipEscrow)
			r.Put("/deliver", h.DeliverEscrow)
			r.Put("/release", h.ReleaseEscrow)
			r.Put("/refund", h.RefundEscrow)
			r.Put("/cancel", h.CancelEscrow)

			r.Get("/milestones", h.ListMilestones)
			r.Post("/milestones", h.CreateMilestones)
			r.Put("/milestones/{milestoneID}/complete", h.CompleteMilestone)
			r.Put("/milestones/{milestoneID}/release", h.ReleaseMilestone)

			r.Post("/disputes", h.OpenDispute)
			r.Get("/dispute", h.GetDispute)
			r.With(requireAdmin).Put("/dispute/resolve", h.ResolveDispute)
		})
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.GetMyWallet)
		r.Get("/ledger", h.GetMyLedger)
		r.Post("/withdraw", h.Withdraw)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/wallets/{userID}/deposit", h.Deposit)
		r.Get("/wallets/{walletID}/reconcile", h.Reconcile)
	})
}

// ================================
// HELPERS
// ================================

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func actorFrom(r *http.Request) (domain.Actor, bool) {
	uid, ok := middleware.GetUserID(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.NewActor(uid, middleware.GetRoles(r.Context())...), true
}

// withActor resolves the caller or answers 401.
func (h *EscrowRestHandler) withActor(fn func(w http.ResponseWriter, r *http.Request, actor domain.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			response.ErrorWithCode(w, http.StatusUnauthorized, xerrors.Kind(xerrors.ErrUnauthenticated), "missing caller identity")
			return
		}
		fn(w, r, actor)
	}
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *EscrowRestHandler) decode(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		return fmt.Errorf("invalid request body: %w", xerrors.ErrInvalidInput)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%s: %w", err.Error(), xerrors.ErrInvalidInput)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" failed "+fe.Tag())
		}
		return fmt.Errorf("validation failed on %s: %w", strings.Join(fields, ", "), xerrors.ErrInvalidInput)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %w", key, xerrors.ErrInvalidInput)
	}
	return v, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %w", key, xerrors.ErrInvalidInput)
	}
	return v, nil
}

// queryTime accepts RFC 3339 or a plain date. With endOfDay set a plain date
// resolves to the following midnight so the whole day is covered.
func queryTime(r *http.Request, key string, endOfDay bool) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, xerrors.ErrInvalidInput)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(idempotencyHeader))
}
