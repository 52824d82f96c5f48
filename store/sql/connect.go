package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ConnectConfig satisfies the persistence client's config contract for the
// two supported backends.
type ConnectConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c ConnectConfig) GetDebug() bool {
	return c.Debug
}

func (c ConnectConfig) GetDriver() string {
	return c.Driver
}

func (c ConnectConfig) GetServer() string {
	return c.DSN
}

func (c ConnectConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ConnectConfig) GetOtelIdentifier() string {
	return "go-registry"
}

// OpenSQLite opens a sqlite-backed persistence client. WAL keeps the
// scheduler's batch writes from blocking interactive reads on one file.
func OpenSQLite(dsn string) (*persistence.Client, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	if !strings.Contains(trimmed, "_journal_mode") && !strings.Contains(trimmed, "mode=memory") {
		separator := "?"
		if strings.Contains(trimmed, "?") {
			separator = "&"
		}
		trimmed += separator + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", trimmed)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := ConnectConfig{Driver: "sqlite3", DSN: trimmed}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new sqlite persistence client: %w", err)
	}
	return client, nil
}

// OpenPostgres opens a postgres-backed persistence client.
func OpenPostgres(dsn string) (*persistence.Client, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}

	sqlDB, err := sql.Open("postgres", trimmed)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}

	cfg := ConnectConfig{Driver: "postgres", DSN: trimmed}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new postgres persistence client: %w", err)
	}
	return client, nil
}
