// Точка входа Tape Catalogue — каталога метаданных ленточного архива.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает каталог, JWT middleware, проверки готовности, мониторинг
// зависимостей и запускает HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/handlers"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/middleware"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/api/openapi"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/catalogue"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/config"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/database"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/domain/rbac"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/server"
	"github.com/bigkaa/goartstore/tape-catalogue/internal/service"
)

const serviceID = "tape-catalogue"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Tape Catalogue запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Каталог
	cat := catalogue.New(pool, logger,
		catalogue.WithMountPolicyCache(cfg.MountPolicyCacheSize, cfg.MountPolicyCacheTTL),
	)

	// 6. JWT middleware и проверка готовности JWKS (если аутентификация включена)
	var (
		jwtAuth     *middleware.JWTAuth
		jwksChecker handlers.ReadinessChecker
	)
	if cfg.AuthEnabled() {
		mapping := rbac.GroupMapping{
			AdminGroups:    cfg.RoleAdminGroups,
			OperatorGroups: cfg.RoleOperatorGroups,
			ReadonlyGroups: cfg.RoleReadonlyGroups,
		}
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.CACertPath,
			cfg.JWTIssuer,
			mapping,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка инициализации JWT", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка инициализации проверки JWKS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwksChecker = checker
		logger.Info("JWT аутентификация включена",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("TC_JWT_JWKS_URL не задан, аутентификация и проверка ролей отключены")
	}

	// 7. Валидация запросов по OpenAPI-контракту
	var validator func(next http.Handler) http.Handler
	if cfg.OpenAPIValidation {
		doc, err := openapi.Load()
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		validator, err = middleware.OpenAPIValidator(doc, logger)
		if err != nil {
			logger.Error("Ошибка инициализации валидации запросов", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 8. topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(
		serviceID,
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. Публикация статистики пулов лент
	var poolStats *service.PoolStatsService
	if cfg.PoolStatsInterval > 0 {
		poolStats = service.NewPoolStatsService(cat.Reference(), cfg.PoolStatsInterval, logger)
		poolStats.Start(ctx)
	}

	// 10. HTTP handlers
	apiHandler := handlers.NewAPIHandler(cat, logger)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), jwksChecker)

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, healthHandler, server.Options{
		JWTAuth:   jwtAuth,
		Validator: validator,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Остановка фоновых задач
	if poolStats != nil {
		poolStats.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Tape Catalogue остановлен")
}
