package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/database/mariadb"
	"github.com/kozaktomas/hijabist/internal/database/postgres"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/store"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// storage is the opened persistence of a command.
type storage struct {
	state    *store.FileStore             // login and remembered email of the CLI
	analyses store.AnalysisStore          // saved analyses in the configured driver
	sessions middleware.SessionRepository // web sessions, PostgreSQL only
	closers  []func() error
}

func (s *storage) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			fmt.Printf("Warning: failed to close storage: %v\n", err)
		}
	}
}

// openStorage opens the analysis store selected by STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	st := &storage{state: store.NewFileStore(cfg.Storage.StateFile)}

	switch cfg.Storage.Driver {
	case config.StorageFile, "":
		st.analyses = st.state
	case config.StoragePostgres:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required for the postgres storage driver")
		}
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		st.analyses = postgres.NewAnalysisRepository(pool)
		st.sessions = postgres.NewSessionRepository(pool)
		st.closers = append(st.closers, pool.Close)
	case config.StorageMariaDB:
		pool, err := mariadb.NewPool(cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		st.analyses = mariadb.NewAnalysisRepository(pool)
		st.closers = append(st.closers, pool.Close)
	default:
		return nil, fmt.Errorf("unknown storage driver %q (use file, postgres or mariadb)", cfg.Storage.Driver)
	}
	return st, nil
}

// newBackendClient creates the backend client, capturing responses when --capture is set.
func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	client, err := backend.New(cfg.Backend.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	if err := client.SetCaptureDir(captureDir); err != nil {
		return nil, err
	}
	return client, nil
}

// restoreSession creates a session manager on the CLI state file and loads
// the saved login.
func restoreSession(ctx context.Context, client *backend.Client, state *store.FileStore) (*session.Manager, error) {
	sessions := session.NewManager(client, state)
	if _, err := sessions.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session from %s: %w", state.Path(), err)
	}
	return sessions, nil
}
