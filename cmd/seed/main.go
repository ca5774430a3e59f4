// Команда seed заводит первого администратора и печатает его токен.
// Запускается один раз на пустом хранилище.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"storagetree/internal/auth"
	"storagetree/internal/config"
	"storagetree/internal/domain"
	"storagetree/internal/logging"
	"storagetree/internal/repository"
	"storagetree/internal/repository/kvstore"
	"storagetree/internal/service"
	"storagetree/internal/storage"
	"storagetree/internal/storage/s3"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	username := flag.String("username", "admin", "admin username")
	flag.Parse()

	if err := run(*configPath, *username); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, username string) (err error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.Init(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync() }()

	store, closeStore, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	var fs storage.Filesystem
	if cfg.Storage.Backend == config.BackendS3 {
		fs, err = s3.NewClient(&cfg.Storage.S3, logger)
	} else {
		fs, err = storage.NewLocalAt(cfg.Storage.BasePath)
	}
	if err != nil {
		return err
	}

	admins := service.NewAdminService(store, fs, cfg.Quota.DefaultDiskSpace, logger)
	user, err := admins.Provision(context.Background(), service.CreateUserRequest{
		Username: username,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("user %q already exists: %w", username, err)
		}
		return err
	}

	token, expiresAt, err := auth.NewAuthenticator(cfg.Auth, store, logger).IssueToken(user)
	if err != nil {
		return err
	}

	logger.Info("admin created", zap.Stringer("user_id", user.ID), zap.Time("token_expires_at", expiresAt))
	fmt.Println(token)
	return nil
}

// openStore подключается к уже мигрированной базе: схему создает сервер
func openStore(cfg config.DatabaseConfig) (repository.Store, func() error, error) {
	if cfg.Driver == config.DriverBadger {
		kv, err := kvstore.Open(cfg.Badger)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	}
	db, err := sqlx.Connect("postgres", cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repository.NewPostgresStore(db), db.Close, nil
}
