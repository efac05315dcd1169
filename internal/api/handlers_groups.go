package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/climated/internal/schedule"
)

type createGroupRequest struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type entityRequest struct {
	Entity string `json:"entity"`
}

type profilesResponse struct {
	ActiveProfile string             `json:"active_profile"`
	Profiles      []schedule.Profile `json:"profiles"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.store.Groups())
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.store.CreateGroup(req.Name, req.Entities)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondCreated(w, r, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "group")
	if err := s.store.DeleteGroup(name); err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]string{"deleted": name})
}

func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.RenameGroup(chi.URLParam(r, "group"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondGroup(w, r, req.Name)
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.AddEntity(group, req.Entity); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondGroup(w, r, group)
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if err := s.store.RemoveEntity(group, chi.URLParam(r, "entity")); err != nil {
		writeError(w, r, err)
		return
	}
	// Removing the last entity of a wrapper group deletes it.
	if _, err := s.store.Group(group); err != nil {
		respondOK(w, r, map[string]string{"deleted": group})
		return
	}
	s.respondGroup(w, r, group)
}

func (s *Server) respondGroup(w http.ResponseWriter, r *http.Request, name string) {
	g, err := s.store.Group(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, g)
}

func (s *Server) handleGroupProfiles(w http.ResponseWriter, r *http.Request) {
	active, profiles, err := s.store.GroupProfiles(chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []schedule.Profile{}
	}
	respondOK(w, r, profilesResponse{ActiveProfile: active, Profiles: profiles})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.store.CreateProfile(chi.URLParam(r, "group"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondCreated(w, r, p)
}

func (s *Server) handleSetActiveProfile(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	group := chi.URLParam(r, "group")
	if err := s.store.SetActiveProfile(group, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGroupProfiles(w, r)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.store.Profiles()
	if profiles == nil {
		profiles = []schedule.Profile{}
	}
	respondOK(w, r, profiles)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteProfile(name); err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]string{"deleted": name})
}

func (s *Server) handleRenameProfile(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.RenameProfile(chi.URLParam(r, "name"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	respondOK(w, r, map[string]string{"renamed": req.Name})
}
