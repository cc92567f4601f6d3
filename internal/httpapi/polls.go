package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/donationbox/internal/pollstore"
)

type pollResponse struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Bindings  []binding `json:"bindings"`
}

type binding struct {
	CategoryID int64 `json:"category_id"`
	Position   int   `json:"position"`
}

func toPollResponse(p pollstore.Poll) pollResponse {
	bindings := make([]binding, len(p.Bindings))
	for i, b := range p.Bindings {
		bindings[i] = binding{CategoryID: b.CategoryID, Position: b.Position}
	}
	return pollResponse{ID: p.ID, Question: p.Question, StartTime: p.StartTime, EndTime: p.EndTime, Bindings: bindings}
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	if s.adminStore != nil {
		out, err := s.listPollsFromAdminStore(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"polls": out})
		return
	}

	polls, err := s.store.ListPolls(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]pollResponse, len(polls))
	for i, p := range polls {
		out[i] = toPollResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"polls": out})
}

// listPollsFromAdminStore serves GET /polls from the Supabase admin client
// instead of the primary Postgres store, keeping read-mostly dashboard
// traffic off the transactional connection pool the donation write path
// depends on.
func (s *Server) listPollsFromAdminStore(ctx context.Context) ([]pollResponse, error) {
	rows, err := s.adminStore.ListPolls(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]pollResponse, len(rows))
	for i, row := range rows {
		bindingRows, err := s.adminStore.ListBindings(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		bindings := make([]binding, len(bindingRows))
		for j, b := range bindingRows {
			bindings[j] = binding{CategoryID: b.CategoryID, Position: b.Position}
		}
		out[i] = pollResponse{
			ID:        row.ID,
			Question:  row.Question,
			StartTime: parseAdminTimestamp(row.StartTime),
			EndTime:   parseAdminTimestamp(row.EndTime),
			Bindings:  bindings,
		}
	}
	return out, nil
}

// parseAdminTimestamp parses the RFC3339 timestamp strings Supabase's REST
// API returns for timestamptz columns. A malformed value is logged and
// reported as the zero time rather than failing the whole list response.
func parseAdminTimestamp(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		slog.Warn("httpapi: could not parse admin store timestamp", "value", raw, "error", err)
		return time.Time{}
	}
	return t
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid poll id")
		return
	}
	poll, err := s.store.GetPollWithBindings(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if poll == nil {
		writeErr(w, http.StatusNotFound, "poll not found")
		return
	}
	writeJSON(w, http.StatusOK, toPollResponse(*poll))
}

type createPollRequest struct {
	Question    string  `json:"question"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CategoryIDs []int64 `json:"category_ids"`
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeErr(w, http.StatusBadRequest, "question is required")
		return
	}

	bindings := make([]pollstore.Binding, len(req.CategoryIDs))
	for i, catID := range req.CategoryIDs {
		bindings[i] = pollstore.Binding{CategoryID: catID, Position: i}
	}

	poll := &pollstore.Poll{
		Question:  req.Question,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Bindings:  bindings,
	}

	id, err := s.store.CreatePoll(r.Context(), poll)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	poll.ID = id
	writeJSON(w, http.StatusCreated, toPollResponse(*poll))
}

type updatePollRequest struct {
	CategoryIDs []int64 `json:"category_ids"`
}

// handleUpdatePoll edits a poll's bindings. Per the positional migration
// rule, donations follow the position they were recorded against, not the
// category id, so a binding edit is the only way poll categories change.
func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	var req updatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.UpdateBindings(r.Context(), id, req.CategoryIDs); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	poll, err := s.store.GetPollWithBindings(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if poll == nil {
		writeErr(w, http.StatusNotFound, "poll not found")
		return
	}
	writeJSON(w, http.StatusOK, toPollResponse(*poll))
}

func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid poll id")
		return
	}
	if err := s.store.DeletePoll(r.Context(), id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("id must be an integer")
	}
	return id, nil
}
