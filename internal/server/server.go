// Пакет server — HTTP-сервер каталога лент с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/handlers"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/middleware"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/openapi"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/config"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/rbac"
)

// Публичные пути: проверяются Kubernetes и Prometheus напрямую, без API Gateway.
var publicPrefixes = []string{"/health/", "/metrics", "/api/openapi.yaml"}

// Server — HTTP-сервер каталога.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Options — необязательные компоненты маршрутизатора.
type Options struct {
	// JWTAuth — nil отключает аутентификацию и проверку ролей.
	JWTAuth *middleware.JWTAuth
	// Validator — middleware валидации по OpenAPI-контракту, nil отключает.
	Validator func(http.Handler) http.Handler
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler,
	health *handlers.HealthHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, api, health, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Потоковая выдача архивных файлов и журнала может идти долго.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор каталога.
func NewRouter(logger *slog.Logger, api *handlers.APIHandler, health *handlers.HealthHandler, opts Options) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.RequestID())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	if opts.JWTAuth != nil {
		router.Use(jwtAuthWithExclusions(opts.JWTAuth, publicPrefixes...))
	}
	// Валидация после аутентификации: анонимный запрос получает 401, а не 400.
	if opts.Validator != nil {
		router.Use(opts.Validator)
	}

	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)
	router.Get("/api/openapi.yaml", openapi.Handler)

	role := func(required string) func(http.Handler) http.Handler {
		if opts.JWTAuth == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(required)
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Чтение каталога
		r.Group(func(r chi.Router) {
			r.Use(role(rbac.RoleReadonly))

			r.Get("/tapes", api.GetTapes)
			r.Post("/tapes/by-vid", api.GetTapesByVID)
			r.Get("/tapes/{vid}", api.GetTape)
			r.Get("/archive-files", api.GetArchiveFiles)
			r.Get("/archive-files/{id}", api.GetArchiveFile)
			r.Get("/recycle-log", api.GetRecycleLog)

			r.Get("/virtual-organizations", api.ListVirtualOrganizations)
			r.Get("/media-types", api.ListMediaTypes)
			r.Get("/logical-libraries", api.ListLogicalLibraries)
			r.Get("/tape-pools", api.ListTapePools)
			r.Get("/tape-pools/{name}", api.GetTapePool)
			r.Get("/storage-classes", api.ListStorageClasses)
			r.Get("/archive-routes", api.ListArchiveRoutes)
			r.Get("/mount-policies", api.ListMountPolicies)
			r.Get("/mount-rules/requester", api.ListRequesterMountRules)
			r.Get("/mount-rules/group", api.ListRequesterGroupMountRules)
			r.Get("/mount-rules/activity", api.ListRequesterActivityMountRules)
		})

		// События ленточной подсистемы: монтирование, запись, чтение
		r.Group(func(r chi.Router) {
			r.Use(role(rbac.RoleOperator))

			r.Post("/tapes/{vid}/labelled", api.TapeLabelled)
			r.Post("/tapes/{vid}/mounts", api.TapeMounted)
			r.Post("/tapes/{vid}/no-space-left", api.NoSpaceLeftOnTape)
			r.Get("/logical-libraries/{name}/tapes-for-writing", api.GetTapesForWriting)
			r.Post("/tape-files/written", api.FilesWrittenToTape)
			r.Post("/archive-files/next-id", api.NextArchiveFileID)
			r.Post("/archive-files/{id}/retrieve-criteria", api.PrepareToRetrieveFile)
		})

		// Администрирование
		r.Group(func(r chi.Router) {
			r.Use(role(rbac.RoleAdmin))

			r.Post("/tapes", api.CreateTape)
			r.Patch("/tapes/{vid}", api.ModifyTape)
			r.Delete("/tapes/{vid}", api.DeleteTape)
			r.Put("/tapes/{vid}/state", api.ModifyTapeState)
			r.Put("/tapes/{vid}/full", api.SetTapeFull)
			r.Put("/tapes/{vid}/dirty", api.SetTapeDirty)
			r.Post("/tapes/{vid}/reclaim", api.ReclaimTape)

			r.Delete("/archive-files/{id}", api.DeleteArchiveFile)
			r.Post("/archive-files/{id}/recycle", api.RecycleArchiveFile)
			r.Put("/archive-files/{id}/disk-file-id", api.UpdateDiskFileID)
			r.Delete("/archive-files/{id}/copies/{copy_nb}", api.DeleteTapeFileCopy)

			r.Post("/recycle-log/restore", api.RestoreRecycledFile)
			r.Delete("/recycle-log", api.DeleteRecycledFile)

			r.Post("/virtual-organizations", api.CreateVirtualOrganization)
			r.Post("/media-types", api.CreateMediaType)
			r.Post("/logical-libraries", api.CreateLogicalLibrary)
			r.Put("/logical-libraries/{name}/disabled", api.SetLogicalLibraryDisabled)
			r.Post("/tape-pools", api.CreateTapePool)
			r.Post("/storage-classes", api.CreateStorageClass)
			r.Post("/archive-routes", api.CreateArchiveRoute)
			r.Delete("/archive-routes/{storage_class}/{copy_nb}", api.DeleteArchiveRoute)
			r.Post("/mount-policies", api.CreateMountPolicy)
			r.Post("/mount-rules/requester", api.CreateRequesterMountRule)
			r.Post("/mount-rules/group", api.CreateRequesterGroupMountRule)
			r.Post("/mount-rules/activity", api.CreateRequesterActivityMountRule)
		})
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
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

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
