// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"nisu-recommender/internal/common/config"

	"github.com/lib/pq"
)

// HydrationTables are the relations the hydration store reads.
var HydrationTables = []string{
	"profil_winker",
	"profil_fileswinker",
	"profil_event",
	"participe_winker",
	"winker",
	"follow_winker",
}

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the relational store holding winkers, events and follows.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// MissingTables returns the names in tables that the current search path
// cannot see, in input order.
func (c *PostgresClient) MissingTables(ctx context.Context, tables []string) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx,
		`SELECT t FROM unnest($1::text[]) AS t WHERE to_regclass(t) IS NULL`,
		pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("check tables: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		missing = append(missing, name)
	}
	return missing, rows.Err()
}

// CheckSchema fails when any hydration table is absent.
func (c *PostgresClient) CheckSchema(ctx context.Context) error {
	missing, err := c.MissingTables(ctx, HydrationTables)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// GetDB returns the underlying *sql.DB
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
