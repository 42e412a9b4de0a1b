// Package mariadb stores saved analyses in MariaDB.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

var schema = []string{`
	CREATE TABLE IF NOT EXISTS analyses (
		id              VARCHAR(64) NOT NULL PRIMARY KEY,
		user_uid        VARCHAR(128) NOT NULL,
		analyzed_at     DATETIME(6) NOT NULL,
		face_shape      TEXT NOT NULL,
		confidence      DOUBLE NOT NULL DEFAULT 0,
		skin_tone       TEXT NOT NULL,
		color_groups    LONGTEXT NOT NULL,
		recommendations LONGTEXT NOT NULL,
		created_at      DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_analyses_user_date (user_uid, analyzed_at)
	) DEFAULT CHARSET = utf8mb4
`,
	// Tables created before labels were unbounded.
	`ALTER TABLE analyses MODIFY face_shape TEXT NOT NULL, MODIFY skin_tone TEXT NOT NULL`,
}

// NewPool creates a new MariaDB connection pool and ensures the schema.
// Timestamps are parsed and stored in UTC whatever the DSN says.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure analyses table: %w", err)
		}
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
