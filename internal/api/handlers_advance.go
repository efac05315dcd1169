package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/climated/internal/schedule"
)

type testFireRequest struct {
	Node *schedule.Node `json:"node,omitempty"`
	Day  string         `json:"day,omitempty"`
}

type syncRequest struct {
	Target string `json:"target,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	o, err := s.coord.Advance(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, o)
}

func (s *Server) handleCancelAdvance(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.coord.CancelAdvance(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.AdvanceStatus(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, st)
}

func (s *Server) handleClearAdvanceHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.coord.ClearAdvanceHistory(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]int64{"deleted": n})
}

func (s *Server) handleTestFire(w http.ResponseWriter, r *http.Request) {
	var req testFireRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.coord.TestFire(chi.URLParam(r, "target"), req.Node, req.Day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, t)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.coord.Sync(r.Context(), req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]int{"synced": n})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.store.Settings())
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.store.Settings()
	if err := decode(r, &settings, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.SaveSettings(settings); err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, s.store.Settings())
}
