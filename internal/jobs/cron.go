package jobs

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// Runner запускает один прогон анализа.
type Runner interface {
	Run(ctx context.Context, query models.Query) (*models.AnalysisResult, error)
}

// Locker не даёт нескольким экземплярам сервиса считать один проект одновременно.
type Locker interface {
	TryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

// Scheduler периодически пересчитывает отчёты по списку проектов.
type Scheduler struct {
	runner   Runner
	locker   Locker
	projects []string
	jql      string
	timeout  time.Duration
	log      zerolog.Logger
	c        *cron.Cron
}

// NewScheduler разбирает cron-выражение (5 полей) и регистрирует задачу.
// locker может быть nil, если архив не настроен.
func NewScheduler(cfg conf.ScheduleConf, jql string, loc *time.Location, runner Runner, locker Locker, log zerolog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
	)
	s := &Scheduler{
		runner:   runner,
		locker:   locker,
		projects: cfg.Projects,
		jql:      jql,
		timeout:  cfg.Timeout.Duration,
		log:      log.With().Str("component", "scheduler").Logger(),
		c:        c,
	}
	if _, err := c.AddFunc(cfg.Cron, s.tick); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Cron, err)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop останавливает планировщик и ждёт завершения текущего прогона.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

func (s *Scheduler) tick() {
	for _, project := range s.projects {
		s.RunProject(context.Background(), project)
	}
}

// RunProject выполняет прогон по одному проекту с таймаутом. Ошибки только логируются.
func (s *Scheduler) RunProject(ctx context.Context, project string) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := s.log.With().Str("project", project).Logger()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, lockKey(project))
		if err != nil {
			log.Error().Err(err).Msg("cron: lock error")
			return
		}
		if !ok {
			log.Info().Msg("cron: already running elsewhere")
			return
		}
		defer release()
	}

	log.Info().Msg("cron: scheduled analysis")
	res, err := s.runner.Run(ctx, models.Query{Project: project, JQL: s.jql})
	if err != nil {
		log.Error().Err(err).Msg("cron: analysis failed")
		return
	}
	log.Info().Str("run_id", res.RunID).Int("issues", res.IssueCount).Msg("cron: analysis done")
}

// lockKey отображает ключ проекта в ключ advisory-блокировки.
func lockKey(project string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("tracker-analytics:" + project))
	return int64(h.Sum64())
}
