package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"storagetree/internal/auth"
	"storagetree/internal/config"
	"storagetree/internal/handler"
	"storagetree/internal/logging"
	"storagetree/internal/repository"
	"storagetree/internal/repository/kvstore"
	"storagetree/internal/service"
	"storagetree/internal/storage"
	"storagetree/internal/storage/s3"
)

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, logger *zap.Logger) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	system := cfg
	system.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", system.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		logger.Info("database does not exist, creating", zap.String("database", cfg.Name))
		if _, err := pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		logger.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg config.DatabaseConfig, logger *zap.Logger) error {
	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", cfg.GetURL())
		if err == nil {
			break
		}
		logger.Warn("failed to create migrate instance", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		logger.Warn("found dirty database state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// openStore поднимает хранилище метаданных; closer освобождает соединение
func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (repository.Store, func() error, error) {
	if cfg.Driver == config.DriverBadger {
		kv, err := kvstore.Open(cfg.Badger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using badger metadata store", zap.String("dir", cfg.Badger.Dir))
		return kv, kv.Close, nil
	}

	db, err := connectWithRetry(cfg, 5, time.Second*5, logger)
	if err != nil {
		return nil, nil, err
	}

	if err := runMigrations(cfg, logger); err != nil {
		return nil, nil, multierr.Append(err, db.Close())
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("failed to ping database: %w", err), db.Close())
	}

	logger.Info("using postgres metadata store", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return repository.NewPostgresStore(db), db.Close, nil
}

func openFilesystem(cfg config.StorageConfig, logger *zap.Logger) (storage.Filesystem, error) {
	if cfg.Backend == config.BackendS3 {
		client, err := s3.NewClient(&cfg.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		logger.Info("using s3 storage", zap.String("bucket", cfg.S3.Bucket))
		return client, nil
	}

	local, err := storage.NewLocalAt(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	logger.Info("using local storage", zap.String("base_path", cfg.BasePath))
	return local, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(appConfig.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Sync() }()

	store, closeStore, err := openStore(appConfig.Database, logger)
	if err != nil {
		logger.Fatal("failed to open metadata store", zap.Error(err))
	}

	fs, err := openFilesystem(appConfig.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	// Инициализация сервисов
	quotaService := service.NewStorageQuotaService(store, logger)
	treeService := service.NewTreeService(store, fs, quotaService, logger)
	adminService := service.NewAdminService(store, fs, appConfig.Quota.DefaultDiskSpace, logger)
	authenticator := auth.NewAuthenticator(appConfig.Auth, store, logger)

	// Инициализация хендлеров
	router := handler.NewRouter(handler.RouterConfig{
		RequestTimeout: appConfig.Server.RequestTimeout,
		Logger:         logger,
		Auth:           authenticator,
	}, handler.Handlers{
		Folders: handler.NewFolderHandler(treeService),
		Files:   handler.NewFileHandler(treeService, appConfig.Server.MaxUploadSize),
		Quota:   handler.NewStorageQuotaHandler(quotaService),
		Admin:   handler.NewAdminHandler(adminService),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("shutting down server")
	case err := <-serveErr:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		httpServer.Shutdown(ctx),
		closeStore(),
	)
	if err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		return
	}

	logger.Info("server exited properly")
}
