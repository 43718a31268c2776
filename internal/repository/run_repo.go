package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

const defaultRunsLimit = 20

// SaveRun сохраняет сводку прогона, отчёт и предупреждения в одной транзакции.
// Повторное сохранение того же run_id ничего не меняет.
func (s *Storage) SaveRun(ctx context.Context, result *models.AnalysisResult) (err error) {
	if result == nil {
		return fmt.Errorf("result is nil")
	}

	report, err := json.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback tx: %w", rollbackErr))
			}
		}
	}()

	const insertRun = `
	INSERT INTO analysis_runs (
		run_id, project, jql, started_at, snapshot_now, finished_at,
		issue_count, closed_count, warning_count, report
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (run_id) DO NOTHING
`
	tag, err := tx.Exec(ctx, insertRun,
		result.RunID,
		result.Query.Project,
		result.Query.JQL,
		result.StartedAt,
		result.SnapshotNow,
		result.FinishedAt,
		result.IssueCount,
		result.ClosedCount,
		result.DataQuality.Total(),
		report,
	)
	if err != nil {
		return fmt.Errorf("insert analysis_runs: %w", err)
	}

	if tag.RowsAffected() > 0 {
		const insertWarning = `INSERT INTO analysis_run_warnings (run_id, kind, issue_key, message) VALUES ($1, $2, $3, $4)`
		for _, w := range result.DataQuality.Warnings {
			if _, err := tx.Exec(ctx, insertWarning, result.RunID, string(w.Kind), w.IssueKey, w.Message); err != nil {
				return fmt.Errorf("insert analysis_run_warnings (%s): %w", w.IssueKey, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// ListRuns возвращает последние прогоны, новые первыми. Пустой project означает все проекты.
func (s *Storage) ListRuns(ctx context.Context, project string, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}

	const q = `
	SELECT run_id::text, project, snapshot_now, finished_at, issue_count, closed_count, warning_count
	FROM analysis_runs
	WHERE ($1 = '' OR project = $1)
	ORDER BY finished_at DESC, run_id
	LIMIT $2
`
	rows, err := s.pool.Query(ctx, q, project, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis_runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunSummary, 0)
	for rows.Next() {
		var r models.RunSummary
		if err := rows.Scan(&r.RunID, &r.Project, &r.SnapshotNow, &r.FinishedAt, &r.IssueCount, &r.ClosedCount, &r.WarningCount); err != nil {
			return nil, fmt.Errorf("scan analysis_runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis_runs: %w", err)
	}
	return runs, nil
}

// GetRun возвращает сохранённый прогон вместе с отчётом и предупреждениями.
func (s *Storage) GetRun(ctx context.Context, runID string) (*models.AnalysisResult, error) {
	const qRun = `
	SELECT run_id::text, project, jql, started_at, snapshot_now, finished_at, issue_count, closed_count, report
	FROM analysis_runs
	WHERE run_id::text = $1
`
	rows, err := s.pool.Query(ctx, qRun, runID)
	if err != nil {
		return nil, fmt.Errorf("query analysis_runs: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, domain.NewNotFoundError(fmt.Sprintf("run %s", runID))
	}

	var (
		res    models.AnalysisResult
		report []byte
	)
	if err := rows.Scan(&res.RunID, &res.Query.Project, &res.Query.JQL, &res.StartedAt, &res.SnapshotNow,
		&res.FinishedAt, &res.IssueCount, &res.ClosedCount, &report); err != nil {
		return nil, fmt.Errorf("scan analysis_runs: %w", err)
	}
	rows.Close()
	if err := json.Unmarshal(report, &res.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	const qWarnings = `SELECT kind, issue_key, message FROM analysis_run_warnings WHERE run_id::text = $1 ORDER BY issue_key, kind`
	wrows, err := s.pool.Query(ctx, qWarnings, runID)
	if err != nil {
		return nil, fmt.Errorf("query analysis_run_warnings: %w", err)
	}
	defer wrows.Close()

	var warnings []models.Warning
	for wrows.Next() {
		var (
			w    models.Warning
			kind string
		)
		if err := wrows.Scan(&kind, &w.IssueKey, &w.Message); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.Kind = models.WarningKind(kind)
		warnings = append(warnings, w)
	}
	if err := wrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis_run_warnings: %w", err)
	}
	res.DataQuality = models.NewDataQuality(warnings)
	return &res, nil
}
