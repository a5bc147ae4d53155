package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// OutcomeResponse wraps an assignment outcome with the rejection reason
type OutcomeResponse struct {
	*services.Outcome
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, policy.ErrForbidden),
		errors.Is(err, auth.ErrUserDisabled),
		errors.Is(err, services.ErrNotTestEnv):
		return http.StatusForbidden
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrPendingNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBusy),
		errors.Is(err, services.ErrSlotClosed):
		return http.StatusConflict
	case errors.Is(err, policy.ErrProfileIncomplete):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

// writeOutcome replies with the outcome. Store failures surface as 502 with
// the outcome body so the client still sees the error notice.
func (s *Server) writeOutcome(w http.ResponseWriter, out *services.Outcome, err error) {
	if out == nil {
		s.writeError(w, err)
		return
	}

	resp := OutcomeResponse{Outcome: out}
	status := http.StatusOK
	switch out.Status {
	case services.StatusAwaitingConfirmation:
		status = http.StatusAccepted
	case services.StatusRejected:
		status = statusFor(out.Reason)
		resp.Reason = out.Reason.Error()
	case services.StatusFailed:
		status = http.StatusBadGateway
		if err != nil {
			s.logger.Error("Assignment write failed", zap.Error(err))
		}
	}
	writeJSON(w, status, resp)
}
