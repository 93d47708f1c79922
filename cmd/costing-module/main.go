// Точка входа Costing Module — расчёт стоимости заявок и сверка предложений поставщиков.
// Загружает конфигурацию, выбирает хранилище (PostgreSQL или память),
// подключает подсистему тендеров и очередь доставки RFQ, создаёт сервисный слой,
// запускает фоновые задачи (закрытие просроченных RFQ, topologymetrics)
// и HTTP-сервер с разрешением арендатора и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/api/handlers"
	"github.com/bigkaa/hexabid/costing-module/internal/api/middleware"
	"github.com/bigkaa/hexabid/costing-module/internal/config"
	"github.com/bigkaa/hexabid/costing-module/internal/database"
	"github.com/bigkaa/hexabid/costing-module/internal/delivery"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
	"github.com/bigkaa/hexabid/costing-module/internal/repository/memory"
	"github.com/bigkaa/hexabid/costing-module/internal/server"
	"github.com/bigkaa/hexabid/costing-module/internal/service"
	"github.com/bigkaa/hexabid/costing-module/internal/tenderclient"
)

func main() {
	// 1. Переменные окружения из .env (файл необязателен) и конфигурация
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Costing Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
	)

	ctx := context.Background()
	opts := repository.Options{SharedCatalog: cfg.SharedCatalog()}

	// 3. Хранилище
	var (
		store    repository.Store
		catalog  service.CatalogSource
		pgDB     *sql.DB
		checkers []handlers.NamedChecker
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (проверка через общий пул)
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		pgStore := repository.NewPostgresStore(pool, opts)
		store, catalog = pgStore, pgStore.Repos().Catalog
		checkers = append(checkers, handlers.NamedChecker{
			Name:    "postgresql",
			Checker: database.NewReadinessChecker(pool),
		})
	default:
		logger.Warn("Используется хранилище в памяти, данные не переживут перезапуск")
		memStore := memory.NewStore(opts)
		store, catalog = memStore, memStore.Repos().Catalog
	}

	// 4. Клиент подсистемы тендеров
	var tokenProvider tenderclient.TokenProvider
	switch {
	case cfg.TenderTokenURL != "":
		tokenProvider = tenderclient.ClientCredentials(
			cfg.TenderTokenURL, cfg.TenderClientID, cfg.TenderClientSecret, nil, nil, logger,
		)
		logger.Info("Сервисный токен подсистемы тендеров: Client Credentials",
			slog.String("token_url", cfg.TenderTokenURL),
			slog.String("client_id", cfg.TenderClientID),
		)
	case cfg.TenderServiceToken != "":
		tokenProvider = tenderclient.StaticToken(cfg.TenderServiceToken)
	}
	tenderClient, err := tenderclient.New(
		cfg.TenderServiceURL,
		cfg.TenantHeader,
		cfg.TenderCACertPath,
		tokenProvider,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания клиента подсистемы тендеров", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Доставка RFQ: очередь asynq в Redis или только журнал
	var publisher delivery.Publisher
	if cfg.DeliveryEnabled() {
		rdb, err := delivery.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()

		asynqClient := delivery.NewAsynqClient(rdb)
		defer asynqClient.Close()

		publisher = delivery.NewAsynqPublisher(asynqClient, cfg.DeliveryQueue, logger)
		checkers = append(checkers, handlers.NamedChecker{
			Name:    "redis",
			Checker: delivery.NewReadinessChecker(rdb),
		})
		logger.Info("Очередь доставки RFQ подключена",
			slog.String("redis", cfg.RedisAddr),
			slog.String("queue", cfg.DeliveryQueue),
		)
	} else {
		publisher = delivery.NewNoopPublisher(logger)
		logger.Warn("CM_REDIS_ADDR не задан, RFQ не передаются транспорту доставки")
	}

	// 6. Кэши и сервисы
	tenders := service.NewTenderDirectory(tenderClient, cfg.TenderCacheSize, cfg.TenderCacheTTL)
	catalogCache := service.NewCatalogCache(catalog, cfg.CatalogCacheSize, cfg.CatalogCacheTTL)
	matcher := matching.NewLexicalMatcher()

	ledgerSvc := service.NewBOQLedgerService(store, tenders, decimal.NewFromFloat(cfg.DefaultGSTPercent), logger)
	generatorSvc := service.NewBOQGenerator(ledgerSvc, tenders, catalogCache, matcher, cfg.MatchThreshold, logger)
	matchSvc := service.NewProductMatchService(catalogCache, matcher, cfg.MatchLimit)
	dispatcherSvc := service.NewRFQDispatcher(store, tenders, publisher, cfg.DeliveryChannels, logger)
	quotesSvc := service.NewQuoteReconciler(store, tenders, logger)

	// 7. Фоновое закрытие просроченных RFQ
	var expirySvc *service.RFQExpiryService
	if cfg.RFQExpiryEnabled {
		expirySvc = service.NewRFQExpiryService(dispatcherSvc, cfg.RFQExpiryInterval, logger)
		expirySvc.Start(ctx)
	}

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL + подсистема тендеров)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:        "costing-module",
		Group:            cfg.DephealthGroup,
		DB:               pgDB,
		PostgresURL:      cfg.MigrateURL(),
		TenderServiceURL: tenderClient.BaseURL(),
		CheckInterval:    cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. JWT (необязателен) и разрешение арендатора
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, cfg.JWTTenantClaim, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checkers = append(checkers, handlers.NamedChecker{
			Name:    "jwks",
			Checker: middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, 5*time.Second),
		})
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}
	tenants := middleware.NewTenantResolver(cfg.TenantHeader, cfg.TenantBaseDomain, logger)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(checkers...),
		ledgerSvc,
		generatorSvc,
		matchSvc,
		dispatcherSvc,
		quotesSvc,
		logger,
	)

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, tenants)
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if expirySvc != nil {
		expirySvc.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Costing Module остановлен")
}
