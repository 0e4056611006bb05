package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"weatherdesk/internal/core"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool       *pgxpool.Pool
	maxHistory int
}

// NewPostgreSQLStore creates the state tables if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, maxHistory int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}

	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS query_history_seq`,
		`CREATE TABLE IF NOT EXISTS query_history (
			name TEXT PRIMARY KEY,
			seq BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_history_seq ON query_history(seq)`,
		`CREATE TABLE IF NOT EXISTS last_city (
			slot SMALLINT PRIMARY KEY CHECK (slot = 1),
			city_id TEXT NOT NULL,
			name TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create state tables: %w", err)
		}
	}

	return &PostgreSQLStore{pool: pool, maxHistory: maxHistory}, nil
}

func (s *PostgreSQLStore) History(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM query_history ORDER BY seq DESC LIMIT $1`, s.maxHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *PostgreSQLStore) AddHistory(ctx context.Context, name string) ([]string, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, core.NewInvalidInputError("city name is required")
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO query_history (name, seq) VALUES ($1, nextval('query_history_seq'))
			ON CONFLICT (name) DO UPDATE SET seq = EXCLUDED.seq
		`, name)
		if err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM query_history WHERE name NOT IN (
				SELECT name FROM query_history ORDER BY seq DESC LIMIT $1
			)
		`, s.maxHistory)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.History(ctx)
}

func (s *PostgreSQLStore) LastCity(ctx context.Context) (core.City, bool, error) {
	var city core.City
	err := s.pool.QueryRow(ctx, `SELECT city_id, name FROM last_city WHERE slot = 1`).Scan(&city.ID, &city.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.City{}, false, nil
	}
	if err != nil {
		return core.City{}, false, fmt.Errorf("failed to query last city: %w", err)
	}
	if !validCity(city) {
		return core.City{}, false, nil
	}
	return city, true, nil
}

func (s *PostgreSQLStore) SetLastCity(ctx context.Context, city core.City) error {
	if !validCity(city) {
		return core.NewInvalidInputError("city id and name are required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO last_city (slot, city_id, name, updated_at) VALUES (1, $1, $2, now())
		ON CONFLICT (slot) DO UPDATE SET city_id = EXCLUDED.city_id, name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
	`, city.ID, city.Name)
	if err != nil {
		return fmt.Errorf("failed to store last city: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
