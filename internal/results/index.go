package results

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/types"
)

// DefaultIndexFile is the index database name inside the results directory.
const DefaultIndexFile = "results.db"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// IndexConfig is the configuration for the SQLite index.
type IndexConfig struct {
	DBPath string
	Logger logrus.FieldLogger
}

func (c *IndexConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	c.Logger = logging.OrNoop(c.Logger).WithField("svc", "results.SQLiteIndex")
	return nil
}

// SQLiteIndex is a queryable copy of every saved result. The JSON files stay the source of truth.
type SQLiteIndex struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// OpenIndex opens (creating if needed) the index database and applies its migrations.
func OpenIndex(ctx context.Context, cfg IndexConfig) (*SQLiteIndex, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := migrateUp(db, cfg.Logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not reach database: %w", err)
	}

	cfg.Logger.Debugf("SQLite index initialized at %s", cfg.DBPath)
	return &SQLiteIndex{db: db, logger: cfg.Logger}, nil
}

func migrateUp(db *sql.DB, logger logrus.FieldLogger) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Errorf("could not close migration source: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	logger.Debugf("Migrations applied successfully")
	return nil
}

// Close closes the database connection.
func (i *SQLiteIndex) Close() error { return i.db.Close() }

// Add records res. Re-adding a result with the same task, agent and timestamp is a no-op.
func (i *SQLiteIndex) Add(ctx context.Context, res types.BenchmarkResult, path string) error {
	query := `
		INSERT OR IGNORE INTO results (
			task_id, agent, timestamp,
			agent_version, model_name, run_id,
			success, score, iterations, tokens_used, duration_secs,
			error, path
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := i.db.ExecContext(ctx, query,
		res.TaskID,
		res.Agent,
		formatTimestamp(res.Timestamp),
		res.AgentVersion,
		res.ModelName,
		res.RunID,
		res.Success,
		res.Score,
		res.Iterations,
		res.TokensUsed,
		res.DurationSecs,
		res.Error,
		path,
	)
	if err != nil {
		return fmt.Errorf("could not insert result: %w", err)
	}
	return nil
}

// Query filters index entries. Empty fields match everything.
type Query struct {
	TaskID  string
	Agent   string
	Model   string
	Success *bool
	Limit   int
}

// Entry is one row of the index.
type Entry struct {
	TaskID       string
	Agent        string
	AgentVersion string
	ModelName    string
	RunID        string
	Timestamp    time.Time
	Success      bool
	Score        int
	Iterations   int
	TokensUsed   int
	DurationSecs float64
	Error        string
	Path         string
}

// Find returns matching entries, newest first.
func (i *SQLiteIndex) Find(ctx context.Context, q Query) ([]Entry, error) {
	var where []string
	var args []any
	if q.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, q.TaskID)
	}
	if q.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, q.Agent)
	}
	if q.Model != "" {
		where = append(where, "model_name = ?")
		args = append(args, q.Model)
	}
	if q.Success != nil {
		where = append(where, "success = ?")
		args = append(args, *q.Success)
	}

	query := `
		SELECT task_id, agent, agent_version, model_name, run_id, timestamp,
			success, score, iterations, tokens_used, duration_secs, error, path
		FROM results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, task_id ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query results: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(
			&e.TaskID, &e.Agent, &e.AgentVersion, &e.ModelName, &e.RunID, &ts,
			&e.Success, &e.Score, &e.Iterations, &e.TokensUsed, &e.DurationSecs, &e.Error, &e.Path,
		); err != nil {
			return nil, fmt.Errorf("could not scan result: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		e.Timestamp = parsed
		out = append(out, e)
	}
	return out, rows.Err()
}
