package api

import (
	"errors"
	"net/http"

	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	from, to, err := s.queryRange(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	history, err := services.AttendanceHistory(r.Context(), s.store, s.logger, &p.User, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type exportResponse struct {
	Tab string `json:"tab"`
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if s.sheets == nil || s.cfg == nil || s.cfg.AttendanceSheetID == "" {
		writeMessage(w, http.StatusServiceUnavailable, "attendance export is not configured")
		return
	}

	from, to, err := s.queryRange(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tab, err := services.ExportAttendance(r.Context(), s.store, s.sheets, s.cfg.AttendanceSheetID, s.logger, &p.User, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Tab: tab})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	users, err := s.users.List(r.Context(), &p.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req services.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Create(r.Context(), &p.User, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type passwordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.UpdatePassword(r.Context(), &p.User, r.PathValue("id"), req.Password, req.PasswordConfirm); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req enabledRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeMessage(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := s.users.SetEnabled(r.Context(), &p.User, r.PathValue("id"), *req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := s.users.Delete(r.Context(), &p.User, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	Password string `json:"password"`
}

// resetTestData is only routed in the test environment
func (s *Server) resetTestData(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	users, err := services.ResetTestData(r.Context(), s.store, s.cfg.Env, req.Password, s.logger)
	if errors.Is(err, services.ErrNotTestEnv) {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
