package config

import (
	"time"

	"github.com/google/uuid"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the local HTTP API settings. The API has no
// authentication, so it binds to loopback by default.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"127.0.0.1"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8787"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds the remote PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// CacheConfig locates the on-device SQLite cache.
type CacheConfig struct {
	Path string `yaml:"path" env:"CACHE_PATH" env-default:"./notetaken.db"`
}

// SyncConfig holds sync engine settings.
type SyncConfig struct {
	// UserIDRaw signs the daemon in at startup when set.
	UserIDRaw string `yaml:"user_id"   env:"SYNC_USER_ID"`
	PageSize  int    `yaml:"page_size" env:"SYNC_PAGE_SIZE" env-default:"200"`

	// UserID is parsed from UserIDRaw during validation; uuid.Nil when unset.
	UserID uuid.UUID `yaml:"-" env:"-"`
}

// LogConfig holds logging settings. When File is set, output goes to a
// size-rotated file instead of stderr.
type LogConfig struct {
	Level      string `yaml:"level"       env:"LOG_LEVEL"       env-default:"info"`
	Format     string `yaml:"format"      env:"LOG_FORMAT"      env-default:"json"`
	File       string `yaml:"file"        env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
}
