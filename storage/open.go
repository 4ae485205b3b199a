package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config describes the database connection.
type Config struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `yaml:"driver" env:"DRIVER"`

	// DSN is the driver-specific data source name. For sqlite it is a file
	// path or ":memory:".
	DSN string `yaml:"dsn" env:"DSN"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	// ConnectAttempts bounds retries of the initial connection only.
	ConnectAttempts int           `yaml:"connect_attempts" env:"CONNECT_ATTEMPTS"`
	ConnectDelay    time.Duration `yaml:"connect_delay" env:"CONNECT_DELAY"`

	// LogQueries enables gorm's SQL trace logging.
	LogQueries bool `yaml:"log_queries" env:"LOG_QUERIES"`
}

// DefaultConfig returns a local sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "taskjournal.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectAttempts: 5,
		ConnectDelay:    500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.ConnectAttempts < 1 {
		return errors.New("connect_attempts must be at least 1")
	}
	return nil
}

func (c Config) dialector() gorm.Dialector {
	switch c.Driver {
	case DriverPostgres:
		return postgres.Open(c.DSN)
	case DriverMySQL:
		return mysql.Open(c.DSN)
	default:
		return sqlite.Open(c.DSN)
	}
}

// Open connects to the configured database, retrying the initial connection
// with exponential backoff. Failures after retries surface as ErrUnavailable.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	level := gormlogger.Silent
	if cfg.LogQueries {
		level = gormlogger.Info
	}
	gormCfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	err := retry.Do(
		func() error {
			d, err := gorm.Open(cfg.dialector(), gormCfg)
			if err != nil {
				return err
			}
			sqlDB, err := d.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				_ = sqlDB.Close()
				return err
			}
			db = d
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.ConnectAttempts)),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Database not ready, retrying",
				"driver", cfg.Driver,
				"attempt", n+1,
				"max_attempts", cfg.ConnectAttempts,
				"error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w: %w", cfg.Driver, ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("Database connected", "driver", cfg.Driver)
	return db, nil
}
