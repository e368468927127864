package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// Database provides persistent storage for agents, command executions and
// templates over database/sql. It satisfies the write-through interfaces of
// the registry, tracker and template store.
type Database struct {
	db     *sql.DB
	cfg    *Config
	logger *zap.Logger
}

// New opens the configured database, verifies connectivity and, when
// enabled, applies pending migrations.
func New(cfg *Config, logger *zap.Logger) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{db: db, cfg: cfg, logger: logger}

	if cfg.AutoMigrate && cfg.MigrationsPath != "" {
		if err := d.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Info("Database connected",
		zap.String("driver", cfg.Driver))
	return d, nil
}

// Ping verifies the database connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Unwrap returns the underlying sql.DB.
func (d *Database) Unwrap() *sql.DB {
	return d.db
}

// Cleanup removes terminal executions that finished before the cutoff.
func (d *Database) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, d.rebind(`
		DELETE FROM command_executions
		WHERE state != ? AND finished_at < ?`),
		string(types.ExecutionStateDispatched), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up executions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// queryContext bounds a statement with the configured query timeout.
func (d *Database) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// rebind rewrites ? placeholders into $n form for postgres. The other
// drivers take the query unchanged.
func (d *Database) rebind(query string) string {
	if d.cfg.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
