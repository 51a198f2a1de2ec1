package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classarena/classarena/config"
	"github.com/classarena/classarena/db"
	"github.com/classarena/classarena/handlers"
	"github.com/classarena/classarena/middleware"
	"github.com/classarena/classarena/realtime"
	"github.com/classarena/classarena/repositories"
	api "github.com/classarena/classarena/routes"
	"github.com/classarena/classarena/services"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

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

	if err := db.Migrate(dbConn, cfg.MigrationsURL); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database schema up to date")

	// Репозитории
	txManager := repositories.NewTxManager(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	answerRepo := repositories.NewPostgresAnswerRepository(dbConn)
	questionRepo := repositories.NewPostgresQuestionRepository(dbConn)
	awardRepo := repositories.NewPostgresAwardRepository(dbConn)

	// Realtime-хаб
	hub := realtime.NewHub(logger)
	go hub.Run()
	notifier := realtime.NewHubNotifier(hub)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	defaults := services.TournamentDefaults{
		AnswerTimeLimitMs: cfg.AnswerTimeLimitMs,
		PointsPerWin:      cfg.PointsPerWin,
		CoinFlipTieBreak:  cfg.CoinFlipTieBreak,
	}

	// Сервисы
	registryService := services.NewRegistryService(txManager, tournamentRepo, participantRepo, rng)
	matchService := services.NewMatchService(txManager, tournamentRepo, participantRepo, matchRepo, answerRepo, questionRepo, rng, logger)
	tournamentService := services.NewTournamentService(
		txManager, tournamentRepo, participantRepo, matchRepo, awardRepo, questionRepo,
		services.NewLogRewardSink(logger), notifier, defaults, rng, logger,
	)
	// Завершение матча отдаёт управление оркестратору в той же транзакции.
	matchService.SetObserver(tournamentService)

	// Восстановление после падения: дотащить победителей, не дошедших до
	// следующего раунда.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tournamentService.RecoverPropagation(recoverCtx); err != nil {
		logger.Error("winner propagation recovery failed", slog.Any("error", err))
		cancelRecover()
		os.Exit(1)
	}
	cancelRecover()

	// Обработчики и маршруты
	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	router := api.InitRoutes(auth, api.Handlers{
		Tournament:  handlers.NewTournamentHandler(tournamentService),
		Participant: handlers.NewParticipantHandler(registryService),
		Match:       handlers.NewMatchHandler(matchService),
		WebSocket:   handlers.NewWebSocketHandler(hub, tournamentService, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	shutdownErr := make(chan error)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit
		logger.Info("shutting down server", slog.String("signal", s.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(ctx)
	}()

	logger.Info("starting server", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}

	if err := <-shutdownErr; err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
