package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"storagetree/internal/auth"
	"storagetree/internal/domain"
	"storagetree/internal/logging"
	"storagetree/internal/repository/kvstore"
	"storagetree/internal/storage/s3"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"

	BackendLocal = "local"
	BackendS3    = "s3"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	Auth     auth.Config    `mapstructure:"Auth"`
	Log      logging.Config `mapstructure:"Log"`
	Quota    QuotaConfig    `mapstructure:"Quota"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port" validate:"required"`
	BaseURL         string        `mapstructure:"BaseURL"`
	RequestTimeout  time.Duration `mapstructure:"RequestTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout" validate:"gte=0"`
	MaxUploadSize   int64         `mapstructure:"MaxUploadSize" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"Driver" validate:"oneof=postgres badger"`
	Host     string         `mapstructure:"Host" validate:"required_if=Driver postgres"`
	Port     string         `mapstructure:"Port" validate:"required_if=Driver postgres"`
	User     string         `mapstructure:"User" validate:"required_if=Driver postgres"`
	Password string         `mapstructure:"Password"`
	Name     string         `mapstructure:"Name" validate:"required_if=Driver postgres"`
	SSLMode  string         `mapstructure:"SSLMode"`
	Badger   kvstore.Config `mapstructure:"Badger"`
}

type StorageConfig struct {
	Backend  string    `mapstructure:"Backend" validate:"oneof=local s3"`
	BasePath string    `mapstructure:"BasePath" validate:"required_if=Backend local"`
	S3       s3.Config `mapstructure:"S3"`
}

type QuotaConfig struct {
	DefaultDiskSpace int64 `mapstructure:"DefaultDiskSpace" validate:"gt=0"`
}

var validate = validator.New()

// переменные окружения перекрывают файл
var envBindings = map[string]string{
	"Server.Port":                "HTTP_PORT",
	"Server.BaseURL":             "BASE_URL",
	"Server.MaxUploadSize":       "MAX_UPLOAD_SIZE",
	"Database.Driver":            "DATABASE_DRIVER",
	"Database.Host":              "DATABASE_HOST",
	"Database.Port":              "DATABASE_PORT",
	"Database.User":              "DATABASE_USER",
	"Database.Password":          "DATABASE_PASSWORD",
	"Database.Name":              "DATABASE_NAME",
	"Database.SSLMode":           "DATABASE_SSLMODE",
	"Database.Badger.Dir":        "BADGER_DIR",
	"Storage.Backend":            "STORAGE_BACKEND",
	"Storage.BasePath":           "STORAGE_BASE_PATH",
	"Storage.S3.Endpoint":        "S3_ENDPOINT",
	"Storage.S3.Region":          "S3_REGION",
	"Storage.S3.Bucket":          "S3_BUCKET",
	"Storage.S3.AccessKeyID":     "S3_ACCESS_KEY_ID",
	"Storage.S3.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
	"Storage.S3.UsePathStyle":    "S3_USE_PATH_STYLE",
	"Auth.JWTSecret":             "JWT_SECRET",
	"Auth.TokenTTL":              "JWT_TTL",
	"Log.Level":                  "LOG_LEVEL",
	"Log.Format":                 "LOG_FORMAT",
	"Quota.DefaultDiskSpace":     "DEFAULT_DISK_SPACE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.RequestTimeout", 60*time.Second)
	v.SetDefault("Server.ShutdownTimeout", 15*time.Second)
	v.SetDefault("Server.MaxUploadSize", 100<<20)
	v.SetDefault("Database.Driver", DriverPostgres)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.Badger.Dir", "data/meta")
	v.SetDefault("Storage.Backend", BackendLocal)
	v.SetDefault("Storage.BasePath", "data/files")
	v.SetDefault("Storage.S3.Region", "us-east-1")
	v.SetDefault("Auth.TokenTTL", auth.DefaultTokenTTL)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "json")
	v.SetDefault("Quota.DefaultDiskSpace", domain.DefaultDiskSpace)
}

// NewConfig читает файл path (если он есть), накладывает переменные окружения и проверяет результат
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			fmt.Printf("Warning: using only environment variables: %v\n", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Storage.Backend == BackendS3 {
		if err := c.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("Storage.S3: %w", err)
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("invalid config: %s failed on '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL - адрес в формате, который ждет golang-migrate
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
