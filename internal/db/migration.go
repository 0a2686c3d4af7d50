package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies the embedded goose migrations to cfg.Schema.
func RunMigrations(ctx context.Context, cfg Config) error {
	slog.Info("Running database migrations")

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}

	db, err := sql.Open("pgx", cfg.Url)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	// A single connection keeps the search_path set below for goose.
	db.SetMaxOpenConns(1)

	if err := ensureSchemaExists(ctx, db, schema); err != nil {
		return err
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("Database migrations completed", "version", version, "schema", schema)
	return nil
}

func ensureSchemaExists(ctx context.Context, db *sql.DB, schema string) error {
	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	if _, err := db.ExecContext(ctx, "SET search_path TO "+ident); err != nil {
		return fmt.Errorf("failed to set search_path: %w", err)
	}
	return nil
}
