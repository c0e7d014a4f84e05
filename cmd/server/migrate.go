package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/surveyhub/internal/config"
	dbstore "github.com/soaringjerry/surveyhub/internal/db"
	"github.com/soaringjerry/surveyhub/internal/platform/logger"
)

// openDatabase opens the sqlite file, applies pending migrations and returns
// the store built on it.
func openDatabase(cfg *config.Config, log *logger.Logger) (*sql.DB, *dbstore.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(cfg.DBPath))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under load
	sqlDB.SetMaxOpenConns(1)

	applied, err := dbstore.RunMigrations(sqlDB, cfg.MigrationsDir)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	for _, name := range applied {
		log.Info("migration applied", "name", name)
	}

	store, err := dbstore.NewSQLiteStore(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("init sqlite store: %w", err)
	}
	return sqlDB, store.WithLogger(log.Named("db").SugaredLogger), nil
}
