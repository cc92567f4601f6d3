package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if s.adminStore != nil {
		rows, err := s.adminStore.ListCategories(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]categoryResponse, len(rows))
		for i, c := range rows {
			out[i] = categoryResponse{ID: c.ID, Name: c.Name}
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": out})
		return
	}

	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]categoryResponse, len(categories))
	for i, c := range categories {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.store.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: id, Name: req.Name})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid category id")
		return
	}
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
