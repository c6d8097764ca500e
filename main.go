package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"voting_api_gateway/internal/api"
	"voting_api_gateway/internal/auth"
	"voting_api_gateway/internal/config"
	"voting_api_gateway/internal/logger"
	"voting_api_gateway/internal/messaging"
	"voting_api_gateway/internal/notify"
	"voting_api_gateway/internal/repository"
	"voting_api_gateway/internal/service"
)

func runMigrations(db *pgxpool.Pool, log *zap.Logger) error {
	log.Info("Running database migrations")

	migrationsDir := "migrations"
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		log.Info("Running migration", zap.String("file", filename))

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		_, err = db.Exec(context.Background(), string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		log.Info("Migration completed", zap.String("file", filename))
	}

	log.Info("All migrations completed successfully")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	log.Info("Starting voting API gateway")

	db, err := pgxpool.New(context.Background(), cfg.DatabaseDSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	log.Info("Connected to database")

	if err := runMigrations(db, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	bus := notify.New(log)
	defer bus.Close()

	if err := bus.AttachNATS(context.Background(), natsClient); err != nil {
		log.Fatal("Failed to bridge notification bus to NATS", zap.Error(err))
	}

	sessionRepo := repository.NewSessionRepository(db, log)
	biometricRepo := repository.NewBiometricRepository(db, log)
	voteRepo := repository.NewVoteRepository(db, log)
	adminRepo := repository.NewAdminRepository(db, log)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.JWTExpiry())

	sessionService := service.NewSessionService(sessionRepo, bus, cfg.SessionTTL(), log)
	biometricService := service.NewBiometricService(biometricRepo, sessionService, bus, log)
	voteService := service.NewVoteService(voteRepo, biometricRepo, bus, log)
	authService := service.NewAuthService(adminRepo, tokens, log)

	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdmin(context.Background(),
			cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName); err != nil {
			log.Fatal("Failed to seed admin account", zap.Error(err))
		}
	}

	// Advisory sweep; expiry is already enforced lazily on every session read.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval()), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := sessionService.ExpireOldSessions(ctx); err != nil {
			log.Error("Expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule expiry sweep", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(sessionService, biometricService, voteService,
		authService, bus, cfg.Session.FrontendURL, log)
	router := api.NewRouter(handler, cfg.Session.FrontendURL, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("Starting server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
