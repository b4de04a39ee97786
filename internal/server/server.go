// Пакет server — HTTP-сервер Bucket Gate с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/bucketgate/internal/api/handlers"
	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/config"
)

// Server — HTTP-сервер Bucket Gate.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// Health endpoints и /metrics открыты: их проверяют Kubernetes и
// Prometheus напрямую. Всё под /api/v1 проходит шлюз авторизации,
// операции администрирования — дополнительно RequireAdmin.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, gate *middleware.AuthGate) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// API — только для разрешённых вызывающих
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(gate.Identity())

		// Объекты бакета
		r.Get("/objects", handler.ListObjects)
		r.Post("/objects", handler.UploadObject)
		r.Delete("/objects", handler.DeleteObject)
		r.Post("/objects/presign", handler.PresignObject)
		r.Get("/objects/download", handler.DownloadObject)

		// Чтение allow-list и проверка данных доступны любой роли
		r.Get("/principals", handler.ListPrincipals)
		r.Post("/validate", handler.ValidateData)

		// Операции администратора
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Post("/principals", handler.CreatePrincipal)
			r.Put("/principals/{id}", handler.UpdatePrincipal)
			r.Delete("/principals/{id}", handler.DeletePrincipal)

			r.Get("/activity", handler.ListActivity)
			r.Post("/credentials/refresh", handler.RefreshCredentials)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
