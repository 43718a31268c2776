package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
)

type Server struct {
	Address string
	server  *http.Server

	router   *chi.Mux
	analyzer AnalysisService
	archive  RunArchive
	log      zerolog.Logger
}

// New конструирует HTTP-сервер на базе chi и регистрирует все маршруты.
// archive может быть nil: тогда маршруты архива отвечают ARCHIVE_DISABLED.
func New(cfg conf.HttpServConf, analyzer AnalysisService, archive RunArchive, log zerolog.Logger) *Server {
	servAdres := cfg.GetAddress()
	mux := chi.NewMux()
	srv := &Server{
		Address:  servAdres,
		router:   mux,
		analyzer: analyzer,
		archive:  archive,
		log:      log.With().Str("component", "http").Logger(),
	}
	srv.server = &http.Server{
		Addr:              servAdres,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.setupRoutes(cfg.BaseURL)

	return srv
}

// Start запускает HTTP-сервер и блокирует поток до остановки.
func (s *Server) Start() error {
	s.log.Info().Str("address", s.server.Addr).Msg("server starting")
	return s.server.ListenAndServe()
}

// setupRoutes настраивает middleware и HTTP-маршруты.
func (s *Server) setupRoutes(baseURL string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := func(r chi.Router) {
		r.Get("/reports/{project}", s.handleReport)
		r.Get("/reports/{project}/{dataset}", s.handleDataset)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	}
	if baseURL != "" && baseURL != "/" {
		s.router.Route(baseURL, api)
	} else {
		api(s.router)
	}
}

// requestLogger пишет одну строку лога на запрос.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// Shutdown останавливает HTTP-сервер с таймаутом на корректное завершение.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// ---------- утилитарные функции ----------

// writeJSON сериализует структуру в JSON-ответ с нужным статусом.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// mapDomainError переводит доменные ошибки в HTTP-статусы и коды ответа.
func (s *Server) mapDomainError(err error) (status int, code, msg string) {
	if err == nil {
		return http.StatusOK, "", ""
	}

	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusBadGateway, string(TRACKERAUTHFAILED), err.Error()
	case errors.Is(err, domain.ErrRetrieval):
		return http.StatusBadGateway, string(RETRIEVALFAILED), err.Error()
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest, string(INVALIDQUERY), err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, string(NOTFOUND), err.Error()
	case errors.Is(err, domain.ErrDatasetUnavailable):
		return http.StatusUnprocessableEntity, string(DATASETUNAVAILABLE), err.Error()
	case errors.Is(err, domain.ErrArchiveDisabled):
		return http.StatusNotFound, string(ARCHIVEDISABLED), err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, string(ANALYSISCANCELLED), err.Error()
	default:
		s.log.Warn().Err(err).Msg("unmapped domain error")
		return http.StatusInternalServerError, string(INTERNALERROR), err.Error()
	}
}

// respondError отвечает ошибкой, переведённой через mapDomainError.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, code, msg := s.mapDomainError(err)
	writeError(w, status, code, msg)
}
