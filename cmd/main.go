package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/analytics"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/jobs"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/logger"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/repository"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/service"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/tracker"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/web"
)

// main конфигурирует сервис и управляет его жизненным циклом до сигнала остановки.
func main() {
	// Берём путь до конфигурации из окружения либо используем значение по умолчанию.
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./conf/config.json"
	}

	config := conf.MustLoad(cfgPath)
	log := logger.New(config.AppEnv)
	log.Info().Str("config_path", cfgPath).Str("tracker", config.TrackerConf.BaseURL).Msg("configuration loaded")

	// Ожидаем сигнал остановки для плавного завершения работы.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		stop()
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("server exited properly")
}

// run поднимает клиент трекера, конвейер анализа, необязательный архив и планировщик,
// HTTP-сервер и работает до отмены ctx. Все созданные ресурсы освобождаются до возврата.
func run(ctx context.Context, config *conf.Config, log zerolog.Logger) error {
	loc, err := config.AnalysisConf.Location()
	if err != nil {
		return fmt.Errorf("invalid analysis timezone: %w", err)
	}

	// Один клиент на процесс: троттлинг общий для всех воркеров.
	client := tracker.NewClient(tracker.OptionsFromConfig(config.TrackerConf, config.RetryConf), log)
	aggregator := analytics.NewAggregator(analytics.Options{
		TopUsers:     config.AnalysisConf.TopUsers,
		MaxBuckets:   config.AnalysisConf.MaxBuckets,
		MaxTrendDays: config.AnalysisConf.MaxTrendDays,
		Location:     loc,
	}, log)
	analyzer := service.NewAnalyzer(
		tracker.NewFetcher(client, log),
		tracker.NewExtractor(client, log),
		aggregator,
		config.AnalysisConf.Workers,
		log,
	)

	// Архив прогонов включается только при наличии секции dataBase.
	var (
		archive web.RunArchive
		locker  jobs.Locker
	)
	if config.DBConf != nil {
		storage, err := repository.NewStorage(ctx, config.DBConf)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer storage.Close()
		analyzer.WithArchive(storage)
		archive = storage
		locker = storage
		log.Info().Str("host", config.DBConf.Host).Str("database", config.DBConf.Name).Msg("run archive enabled")
	}

	if config.ScheduleConf != nil {
		scheduler, err := jobs.NewScheduler(*config.ScheduleConf, config.AnalysisConf.ExtraJQL, loc, analyzer, locker, log)
		if err != nil {
			return fmt.Errorf("scheduler initialization failed: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Str("cron", config.ScheduleConf.Cron).Strs("projects", config.ScheduleConf.Projects).Msg("scheduler started")
	}

	server := web.New(config.HTTPServConf, analyzer, archive, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	log.Info().Str("address", server.Address).Msg("tracker analytics service started")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
