package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

const maxRunsLimit = 200

type listRunsResp struct {
	Runs []models.RunSummary `json:"runs"`
}

// handleListRuns возвращает последние сохранённые прогоны.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, domain.ErrArchiveDisabled)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			writeError(w, http.StatusBadRequest, string(INVALIDPARAM), "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	runs, err := s.archive.ListRuns(r.Context(), r.URL.Query().Get("project"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, listRunsResp{Runs: runs})
}

// handleGetRun возвращает сохранённый прогон целиком.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, domain.ErrArchiveDisabled)
		return
	}

	res, err := s.archive.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
