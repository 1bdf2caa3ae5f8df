package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Pinger is the health check surface shared by the database and redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client owns the gorm pool and the transaction discipline: every unit of
// work runs through WithTx so row locks are bounded by lockTimeout.
type Client struct {
	conn        *gorm.DB
	lockTimeout time.Duration
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var dialector gorm.Dialector
	switch driver {
	case "", DriverPostgres:
		driver = DriverPostgres
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; extra connections only surface as SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"driver":       driver,
		"lock_timeout": cfg.LockTimeout.String(),
	}), "database connection established")
	return &Client{conn: conn, lockTimeout: cfg.LockTimeout}, nil
}

// NewFromGorm wraps an open connection; tests and tools use it.
func NewFromGorm(conn *gorm.DB, lockTimeout time.Duration) *Client {
	return &Client{conn: conn, lockTimeout: lockTimeout}
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Dialect() string { return c.conn.Dialector.Name() }

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction that commits on nil, rolls back on error
// and rolls back then re-panics on panic. On postgres the transaction first
// sets a local lock_timeout.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := SetLockTimeout(tx, c.lockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
}
