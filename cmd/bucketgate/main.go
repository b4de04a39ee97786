// Точка входа Bucket Gate — шлюз учётных данных и авторизации для
// файлового менеджера объектного хранилища.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт провайдер и кэш учётных данных хранилища, сервисный слой и
// API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/bucketgate/internal/api/handlers"
	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/config"
	"github.com/arturkryukov/bucketgate/internal/credential"
	"github.com/arturkryukov/bucketgate/internal/database"
	"github.com/arturkryukov/bucketgate/internal/repository"
	"github.com/arturkryukov/bucketgate/internal/server"
	"github.com/arturkryukov/bucketgate/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Bucket Gate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("auth_mode", string(cfg.AuthMode)),
	)

	if cfg.AuthMode == config.AuthModeBypass {
		logger.Warn("Шлюз авторизации в режиме bypass — только для разработки",
			slog.String("bypass_principal", cfg.AuthBypassPrincipal),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	principalRepo := repository.NewPrincipalRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// 6. Провайдер и кэш учётных данных хранилища
	provider := credential.NewAWSProvider(credential.Options{
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		RoleARN:         cfg.S3RoleARN,
		SessionName:     cfg.S3SessionName,
		Endpoint:        cfg.S3Endpoint,
		Durations:       cfg.CredentialDurations,
		RequestTimeout:  cfg.S3RequestTimeout,
	}, logger)
	credCache := credential.NewCache(provider, logger)

	// 7. Services
	principalsSvc := service.NewPrincipalService(
		principalRepo,
		cfg.PrincipalCacheSize,
		cfg.PrincipalCacheTTL,
		logger,
	)
	auditSvc := service.NewAuditService(auditRepo, cfg.AuditRetention, logger)
	storageSvc := service.NewStorageService(
		credCache,
		auditSvc,
		cfg.S3Bucket,
		cfg.S3RequestTimeout,
		logger,
	)
	validationSvc := service.NewValidationService(logger)

	// 8. Стартовый администратор (опционально, BG_BOOTSTRAP_ADMIN).
	// Сбой фатален: оператор явно запросил администратора, без него
	// allow-list может остаться неуправляемым.
	if err := principalsSvc.Bootstrap(ctx, cfg.BootstrapAdmin); err != nil {
		logger.Error("Ошибка создания стартового администратора", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Readiness checkers (PostgreSQL + слот учётных данных)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, credCache)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		principalsSvc,
		storageSvc,
		auditSvc,
		validationSvc,
		credCache,
		logger,
	)

	// 11. Шлюз авторизации
	gate := middleware.NewAuthGate(
		principalsSvc,
		cfg.IdentityHeader,
		cfg.AuthMode,
		cfg.AuthBypassPrincipal,
		logger,
	)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + S3)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"bucketgate",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.S3Endpoint,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, gate)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Bucket Gate остановлен")
}
