package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := s.auth.SignOut(r.Context(), p.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.notifier.Drop(p.Session)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, p.User)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req services.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), &p.User, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debug("Profile updated over HTTP", zap.String("uid", user.ID))
	writeJSON(w, http.StatusOK, user)
}

// currentNotice returns the session's active feedback message, or 204
func (s *Server) currentNotice(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	msg, ok := s.notifier.Current(p.Session)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if !s.notifier.Dismiss(p.Session, r.PathValue("id")) {
		writeMessage(w, http.StatusNotFound, "notice not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
