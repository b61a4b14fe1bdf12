package hrest

import (
	"errors"
	"net/http"

	"escrow-service/shared/response"
	xerrors "escrow-service/shared/utils/errors"

	"go.uber.org/zap"
)

// retryAfterSeconds is advertised on 503 responses for lock contention.
const retryAfterSeconds = "1"

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrInvalidTransition), errors.Is(err, xerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, xerrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, xerrors.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *EscrowRestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := xerrors.Kind(err)
	msg := err.Error()

	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
	case status >= http.StatusInternalServerError:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err))
		// internal details stay in the log
		msg = "internal error"
	}
	response.ErrorWithCode(w, status, kind, msg)
}
