package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
	"github.com/yufr007/seacaster-sub001/config"
	"github.com/yufr007/seacaster-sub001/db"
	"github.com/yufr007/seacaster-sub001/handlers"
	"github.com/yufr007/seacaster-sub001/ledger"
	"github.com/yufr007/seacaster-sub001/metrics"
	"github.com/yufr007/seacaster-sub001/realtime"
	"github.com/yufr007/seacaster-sub001/repositories"
	api "github.com/yufr007/seacaster-sub001/routes"
	"github.com/yufr007/seacaster-sub001/services"
	"github.com/yufr007/seacaster-sub001/storage"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Клиент леджера (внешний кошелёк игроков)
	ledgerClient, err := ledger.NewHTTPClient(ledger.HTTPClientConfig{
		BaseURL: cfg.LedgerBaseURL,
		Timeout: cfg.LedgerTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize ledger client", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("ledger client initialized", slog.String("base_url", cfg.LedgerBaseURL))

	// Хранилище аудита расчётов (Cloudflare R2). Опционально.
	var uploader storage.FileUploader
	if cfg.ArchiveEnabled() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Info("settlement archive disabled: R2 credentials not configured")
	}

	// Инициализация WebSocket Hub
	wsHub := realtime.NewHub(logger)

	// Метрики
	metricsManager := metrics.NewManager("tournament_engine")

	// Инициализация репозиториев
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	entryRepo := repositories.NewPostgresEntryRepository(dbConn)
	scoreRepo := repositories.NewPostgresScoreRepository(dbConn)
	payoutRepo := repositories.NewPostgresPayoutRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	leaderboardService := services.NewLeaderboardService(entryRepo)
	settlementService := services.NewSettlementService(
		tournamentRepo,
		payoutRepo,
		leaderboardService,
		ledgerClient,
		wsHub,
		uploader,
		metricsManager,
		logger,
	)
	tournamentService := services.NewTournamentService(
		tournamentRepo,
		entryRepo,
		scoreRepo,
		leaderboardService,
		ledgerClient,
		wsHub,
		settlementService,
		metricsManager,
		logger,
		cfg.MaxScore,
		cfg.LedgerTimeout,
	)
	wsHub.SetEngine(services.NewEngineAdapter(tournamentService, leaderboardService))
	go wsHub.Run()
	logger.Info("services initialized, websocket hub started")

	// Планировщик переходов статусов: OPEN -> LIVE -> ENDED по часам.
	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			if err := tournamentService.SweepStatuses(context.Background()); err != nil {
				logger.Error("status sweep failed", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		logger.Error("failed to schedule status sweep", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()
	logger.Info("status sweep scheduler started", slog.Duration("interval", cfg.SweepInterval))

	// Инициализация обработчиков HTTP
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, leaderboardService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	router := api.InitRoutes(tournamentHandler, webSocketHandler, cfg.JWTSecretKey)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
