// Пакет server — HTTP-сервер Deckstore с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/deckstore/internal/api/handlers"
	"github.com/bigkaa/deckstore/internal/config"
)

// Server — HTTP-сервер Deckstore.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Routes — обработчики и middleware маршрутизатора.
type Routes struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	// Auth — JWT middleware для загрузки и обслуживания (nil — без аутентификации)
	Auth func(http.Handler) http.Handler
	// Middlewares — общие middleware (метрики, логирование) в порядке применения
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter собирает маршруты API.
func NewRouter(routes Routes) http.Handler {
	router := chi.NewRouter()
	for _, mw := range routes.Middlewares {
		router.Use(mw)
	}

	protected := func(r chi.Router) chi.Router {
		if routes.Auth == nil {
			return r
		}
		return r.With(routes.Auth)
	}

	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Get("/metrics", routes.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/decks", routes.API.ListDecks)
		protected(r).Post("/decks", routes.API.UploadDeck)
		r.Get("/decks/{id}", routes.API.GetDeck)
		r.Get("/decks/{id}/download", routes.API.DownloadDeck)
		r.Post("/catalog/reload", routes.API.ReloadCatalog)
		protected(r).Get("/maintenance/orphans", routes.API.Orphans)
	})

	router.Get("/files/*", routes.API.ServeFile)
	return router
}

// New создаёт HTTP-сервер с настроенными маршрутами и таймаутами.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(routes),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	return &Server{httpServer: srv, logger: logger, cfg: cfg}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
