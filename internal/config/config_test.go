package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
Server:
  Port: "8080"
Database:
  Driver: badger
  Badger:
    Dir: /var/lib/storagetree
Storage:
  Backend: local
  BasePath: /srv/files
Auth:
  JWTSecret: 0123456789abcdef0123
  TokenTTL: 1h
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverBadger, cfg.Database.Driver)
	assert.Equal(t, "/var/lib/storagetree", cfg.Database.Badger.Dir)
	assert.Equal(t, "/srv/files", cfg.Storage.BasePath)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(1<<30), cfg.Quota.DefaultDiskSpace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
Database:
  Driver: badger
Auth:
  JWTSecret: 0123456789abcdef0123
`)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_HOST", "db")
	t.Setenv("DATABASE_PORT", "5432")
	t.Setenv("DATABASE_USER", "storagetree")
	t.Setenv("DATABASE_NAME", "filemanager")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "host=db port=5432 user=storagetree password= dbname=filemanager sslmode=disable", cfg.Database.GetDSN())
	assert.Equal(t, "postgres://storagetree:@db:5432/filemanager?sslmode=disable", cfg.Database.GetURL())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing secret",
			body:    "Database:\n  Driver: badger\n",
			wantErr: "JWTSecret",
		},
		{
			name:    "unknown driver",
			body:    "Database:\n  Driver: mongo\nAuth:\n  JWTSecret: 0123456789abcdef0123\n",
			wantErr: "Driver",
		},
		{
			name:    "postgres without host",
			body:    "Database:\n  Driver: postgres\nAuth:\n  JWTSecret: 0123456789abcdef0123\n",
			wantErr: "Host",
		},
		{
			name:    "s3 without bucket",
			body:    "Database:\n  Driver: badger\nStorage:\n  Backend: s3\n  S3:\n    AccessKeyID: a\n    SecretAccessKey: b\nAuth:\n  JWTSecret: 0123456789abcdef0123\n",
			wantErr: "Bucket",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
