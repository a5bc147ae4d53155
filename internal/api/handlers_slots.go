package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// maxRangeDays bounds calendar and history queries
const maxRangeDays = 366

// queryRange reads from/to. When both are missing and fallback is set the
// range starts today and spans calendarDays.
func (s *Server) queryRange(r *http.Request, fallback bool) (time.Time, time.Time, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" && fallback {
		days := 14
		if s.cfg != nil {
			days = s.cfg.CalendarDays
		}
		start := s.calendar.Today(s.Now())
		return start, start.AddDate(0, 0, days-1), nil
	}
	if to == "" {
		to = from
	}

	start, end, err := calendar.ParseRange(from, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	if end.Sub(start) >= maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range longer than %d days", services.ErrValidation, maxRangeDays)
	}
	return start, end, nil
}

func slotKey(r *http.Request) (model.SlotKey, error) {
	key, err := model.ParseSlotKey(r.PathValue("slot"))
	if err != nil {
		return model.SlotKey{}, fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	return key, nil
}

func (s *Server) viewCalendar(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	from, to, err := s.queryRange(r, true)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := services.ViewCalendar(r.Context(), s.store, s.calendar, s.logger, &p.User, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	key, err := slotKey(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.assignments.ToggleShift(r.Context(), p.Session, &p.User, key)
	s.writeOutcome(w, out, err)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	out, err := s.assignments.Confirm(r.Context(), p.Session, &p.User, r.PathValue("id"))
	s.writeOutcome(w, out, err)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	out, err := s.assignments.Cancel(r.Context(), &p.User, r.PathValue("id"))
	s.writeOutcome(w, out, err)
}

type assignRequest struct {
	UserID string `json:"uid"`
}

func (s *Server) adminAssign(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	key, err := slotKey(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeMessage(w, http.StatusBadRequest, "uid is required")
		return
	}

	out, err := s.assignments.AdminAssign(r.Context(), p.Session, &p.User, key, req.UserID)
	s.writeOutcome(w, out, err)
}

// adminUnassign opens the destructive confirmation; the removal happens on confirm
func (s *Server) adminUnassign(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	key, err := slotKey(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.assignments.AdminRequestRemoval(r.Context(), p.Session, &p.User, key, r.PathValue("uid"))
	s.writeOutcome(w, out, err)
}
