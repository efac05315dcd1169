package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/schedule"
)

type scheduleResponse struct {
	Group     schedule.Group    `json:"group"`
	Effective schedule.Schedule `json:"effective"`
}

type setScheduleRequest struct {
	Nodes        []schedule.Node `json:"nodes"`
	Day          string          `json:"day,omitempty"`
	ScheduleMode string          `json:"schedule_mode,omitempty"`
}

type ignoreRequest struct {
	Ignored *bool `json:"ignored"`
}

type upcomingResponse struct {
	Group string          `json:"group"`
	Next  []resolver.Next `json:"next"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := s.store.GetSchedule(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, scheduleResponse{Group: view.Group, Effective: view.Effective})
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req setScheduleRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	target := chi.URLParam(r, "target")
	if _, err := s.store.SetSchedule(target, req.Nodes, req.Day, req.ScheduleMode); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleClearSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearSchedule(chi.URLParam(r, "target")); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Enable(chi.URLParam(r, "target")); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Disable(chi.URLParam(r, "target")); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	var req ignoreRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	ignored := true
	if req.Ignored != nil {
		ignored = *req.Ignored
	}
	if err := s.store.SetIgnored(chi.URLParam(r, "target"), ignored); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	count := 5
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, r, &schedule.ValidationError{Field: "count", Reason: "must be between 1 and 100"})
			return
		}
		count = n
	}

	view, err := s.store.GetSchedule(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	next, err := resolver.Upcoming(view.Effective, s.clock.Now(), s.calendar, count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if next == nil {
		next = []resolver.Next{}
	}
	respondOK(w, r, upcomingResponse{Group: view.Group.Name, Next: next})
}
