package web

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

type datasetResp struct {
	RunID       string `json:"run_id"`
	Project     string `json:"project"`
	Dataset     string `json:"dataset"`
	Data        any    `json:"data"`
	WarningsNum int    `json:"warning_count"`
}

// handleReport запускает прогон по проекту и возвращает полный результат.
// Дополнительный фильтр передаётся параметром jql.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.analyzer.Run(r.Context(), queryFromRequest(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDataset запускает прогон и возвращает один датасет по имени.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	if !isKnownDataset(name) {
		s.respondError(w, domain.NewNotFoundError(fmt.Sprintf("dataset %q", name)))
		return
	}

	query := queryFromRequest(r)
	res, err := s.analyzer.Run(r.Context(), query)
	if err != nil {
		s.respondError(w, err)
		return
	}

	data, ok := res.Report.Dataset(name)
	if !ok {
		s.respondError(w, domain.NewDatasetUnavailableError(name, res.Report.Unavailable[name]))
		return
	}

	writeJSON(w, http.StatusOK, datasetResp{
		RunID:       res.RunID,
		Project:     query.Project,
		Dataset:     name,
		Data:        data,
		WarningsNum: res.DataQuality.Total(),
	})
}

func queryFromRequest(r *http.Request) models.Query {
	return models.Query{
		Project: chi.URLParam(r, "project"),
		JQL:     r.URL.Query().Get("jql"),
	}
}

func isKnownDataset(name string) bool {
	return slices.Contains(models.DatasetNames, name)
}
