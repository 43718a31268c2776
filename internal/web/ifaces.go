package web

import (
	"context"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// AnalysisService запускает прогон анализа для HTTP-слоя.
type AnalysisService interface {
	Run(ctx context.Context, query models.Query) (*models.AnalysisResult, error)
}

// RunArchive отдаёт сохранённые прогоны. Может отсутствовать, если база не настроена.
type RunArchive interface {
	ListRuns(ctx context.Context, project string, limit int) ([]models.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*models.AnalysisResult, error)
}
