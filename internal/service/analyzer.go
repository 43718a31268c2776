package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/timeline"
)

type IssueSource interface {
	Issues(ctx context.Context, query models.Query) iter.Seq2[models.IssueRecord, error]
}

type ChangelogSource interface {
	Extract(ctx context.Context, rec models.IssueRecord) ([]models.TransitionEvent, []models.Warning, error)
}

type ReportBuilder interface {
	Build(timelines []models.Timeline) models.Report
}

type RunArchive interface {
	SaveRun(ctx context.Context, result *models.AnalysisResult) error
}

// Analyzer выполняет прогон целиком: выборка, истории, таймлайны, агрегация.
type Analyzer struct {
	issues     IssueSource
	changelogs ChangelogSource
	builder    ReportBuilder
	archive    RunArchive
	workers    int
	clock      func() time.Time
	validate   *validator.Validate
	log        zerolog.Logger
}

// NewAnalyzer связывает источники данных и построитель отчёта.
// workers ограничивает число одновременных запросов истории.
func NewAnalyzer(issues IssueSource, changelogs ChangelogSource, builder ReportBuilder, workers int, log zerolog.Logger) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{
		issues:     issues,
		changelogs: changelogs,
		builder:    builder,
		workers:    workers,
		clock:      time.Now,
		validate:   newQueryValidator(),
		log:        log.With().Str("component", "analyzer").Logger(),
	}
}

// WithArchive включает сохранение сводок прогонов.
func (a *Analyzer) WithArchive(archive RunArchive) *Analyzer {
	a.archive = archive
	return a
}

// WithClock подменяет источник времени (снимок now берётся из него один раз за прогон).
func (a *Analyzer) WithClock(clock func() time.Time) *Analyzer {
	a.clock = clock
	return a
}

// Run выполняет один прогон. Результат либо полный и согласованный, либо ошибка:
// при AuthError, RetrievalError или отмене контекста частичные данные отбрасываются
// и агрегация не выполняется.
func (a *Analyzer) Run(ctx context.Context, query models.Query) (*models.AnalysisResult, error) {
	if err := a.validate.Var(query.Project, "required,project-key"); err != nil {
		return nil, domain.NewInvalidQueryError(fmt.Sprintf("project %q: %v", query.Project, err))
	}

	now := a.clock()
	runLog := a.log.With().Str("project", query.Project).Time("snapshot_now", now).Logger()
	runLog.Info().Msg("analysis started")

	records, warnings, err := a.collect(ctx, query)
	if err != nil {
		runLog.Error().Err(err).Msg("issue retrieval failed")
		return nil, err
	}
	runLog.Info().Int("issues", len(records)).Msg("issues fetched")

	timelines, timelineWarnings, err := a.reconstructAll(ctx, records, now)
	if err != nil {
		runLog.Error().Err(err).Msg("changelog retrieval failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		runLog.Warn().Err(err).Msg("analysis cancelled, partial state discarded")
		return nil, err
	}
	warnings = append(warnings, timelineWarnings...)

	report := a.builder.Build(timelines)

	result := &models.AnalysisResult{
		RunID:       uuid.NewString(),
		Query:       query,
		StartedAt:   now,
		SnapshotNow: now,
		FinishedAt:  a.clock(),
		IssueCount:  len(timelines),
		Report:      report,
		DataQuality: models.NewDataQuality(warnings),
	}
	for _, tl := range timelines {
		if tl.Issue.Closed {
			result.ClosedCount++
		}
	}

	if a.archive != nil {
		if err := a.archive.SaveRun(ctx, result); err != nil {
			runLog.Error().Err(err).Str("run_id", result.RunID).Msg("failed to archive run")
		}
	}

	runLog.Info().
		Str("run_id", result.RunID).
		Int("issues", result.IssueCount).
		Int("closed", result.ClosedCount).
		Int("warnings", result.DataQuality.Total()).
		Int("degraded", result.DataQuality.DegradedIssues).
		Msg("analysis finished")
	return result, nil
}

// collect выбирает все записи. Битые записи превращаются в предупреждения,
// любая другая ошибка прерывает выборку.
func (a *Analyzer) collect(ctx context.Context, query models.Query) ([]models.IssueRecord, []models.Warning, error) {
	var (
		records  []models.IssueRecord
		warnings []models.Warning
	)
	for rec, err := range a.issues.Issues(ctx, query) {
		if err != nil {
			if errors.Is(err, domain.ErrMalformedRecord) {
				warnings = append(warnings, domain.WarningFromError(err))
				continue
			}
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

// reconstructAll запрашивает истории пулом из a.workers воркеров и восстанавливает
// таймлайны. Результаты раскладываются по индексу записи, поэтому не зависят от
// порядка завершения воркеров.
func (a *Analyzer) reconstructAll(ctx context.Context, records []models.IssueRecord, now time.Time) ([]models.Timeline, []models.Warning, error) {
	timelines := make([]models.Timeline, len(records))
	perIssue := make([][]models.Warning, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, rec := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events, extractWarnings, err := a.changelogs.Extract(gctx, rec)
			if err != nil {
				return err
			}
			res := timeline.Reconstruct(rec.Issue, events, now)
			timelines[i] = models.Timeline{
				Issue:     rec.Issue,
				Intervals: res.Intervals,
				Degraded:  res.Degraded,
			}
			perIssue[i] = slices.Concat(rec.Warnings, extractWarnings, res.Warnings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return timelines, slices.Concat(perIssue...), nil
}

// newQueryValidator настраивает валидатор ключа проекта.
func newQueryValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("project-key", func(fl validator.FieldLevel) bool {
		return domain.ValidProjectKey(fl.Field().String())
	}); err != nil {
		panic("failed to register project-key validation: " + err.Error())
	}
	return v
}
