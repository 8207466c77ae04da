package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

// Config holds database connection configuration
type Config struct {
	// URL, when set, is used verbatim as the connection string (e.g. a hosted
	// Postgres DATABASE_URL) and the discrete fields below are ignored.
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	SearchPath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() (string, error) {
	if c.URL != "" {
		if c.SearchPath == "" {
			return c.URL, nil
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			return "", fmt.Errorf("invalid database url: %w", err)
		}
		q := u.Query()
		q.Set("search_path", c.SearchPath)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
	if c.SearchPath != "" {
		dsn += fmt.Sprintf(" search_path=%s", c.SearchPath)
	}
	return dsn, nil
}

// PostgresDB wraps sqlx.DB with monitoring and metrics
type PostgresDB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*PostgresDB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(context.Background(), "[DB_INIT] PostgreSQL connection established", logging.Fields{
		"host":              cfg.Host,
		"port":              cfg.Port,
		"database":          cfg.Database,
		"using_url":         cfg.URL != "",
		"search_path":       cfg.SearchPath,
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	pgDB := NewPostgresDBFromSQLX(db, cfg, logger, metricsCollector)

	go pgDB.monitorConnectionPool()

	return pgDB, nil
}

// NewPostgresDBFromSQLX wraps an already opened handle without starting the
// pool monitor. Tests use it with go-sqlmock.
func NewPostgresDBFromSQLX(db *sqlx.DB, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PostgresDB {
	if cfg == nil {
		cfg = &Config{}
	}
	return &PostgresDB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		stop:    make(chan struct{}),
	}
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"database": p.config.Database,
	})
	return p.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (p *PostgresDB) DB() *sqlx.DB {
	return p.db
}

// QueryContext executes a query with context and metrics
func (p *PostgresDB) QueryContext(ctx context.Context, queryType, query string, args ...interface{}) (*sqlx.Rows, error) {
	timer := time.Now()
	defer p.observe(ctx, queryType, timer)

	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		p.metrics.RecordDBError("query_error")
		p.logger.Error(ctx, "[DB_QUERY_ERROR] Query failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
		return nil, err
	}

	return rows, nil
}

// ExecContext executes a command with context and metrics
func (p *PostgresDB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer p.observe(ctx, queryType, timer)

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		p.metrics.RecordDBError("exec_error")
		p.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (p *PostgresDB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer p.observe(ctx, queryType, timer)

	err := p.db.GetContext(ctx, dest, query, args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		p.metrics.RecordDBError("get_error")
		p.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (p *PostgresDB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer p.observe(ctx, queryType, timer)

	err := p.db.SelectContext(ctx, dest, query, args...)
	if err != nil {
		p.metrics.RecordDBError("select_error")
		p.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// BeginTx begins a new transaction. A nil opts uses READ COMMITTED.
func (p *PostgresDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	if opts == nil {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}

	tx, err := p.db.BeginTxx(ctx, opts)
	if err != nil {
		p.metrics.RecordDBError("transaction_begin_error")
		p.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return &Tx{tx: tx, p: p}, nil
}

func (p *PostgresDB) observe(ctx context.Context, queryType string, start time.Time) {
	duration := time.Since(start)
	p.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	p.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
		"query_type":  queryType,
		"duration_ms": duration.Milliseconds(),
	})
}

// monitorConnectionPool periodically updates connection pool metrics
func (p *PostgresDB) monitorConnectionPool() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		stats := p.db.Stats()

		p.metrics.UpdateDBConnectionPool(
			stats.InUse,
			stats.Idle,
			stats.OpenConnections,
		)

		if p.config.MaxOpenConns <= 0 {
			continue
		}

		// Log warning if connection pool is near capacity
		utilization := float64(stats.InUse) / float64(p.config.MaxOpenConns)
		if utilization > 0.8 {
			p.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    p.config.MaxOpenConns,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
