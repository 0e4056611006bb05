package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"weatherdesk/internal/core"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
}

// NewSQLiteStore creates the state tables if needed.
func NewSQLiteStore(db *sql.DB, maxHistory int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS query_history (
			name TEXT PRIMARY KEY,
			seq INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_history_seq ON query_history(seq)`,
		`CREATE TABLE IF NOT EXISTS last_city (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			city_id TEXT NOT NULL,
			name TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create state tables: %w", err)
		}
	}

	return &SQLiteStore{db: db, maxHistory: maxHistory}, nil
}

func (s *SQLiteStore) History(ctx context.Context) ([]string, error) {
	return queryHistory(ctx, s.db, s.maxHistory)
}

func queryHistory(ctx context.Context, db *sql.DB, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM query_history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) AddHistory(ctx context.Context, name string) ([]string, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, core.NewInvalidInputError("city name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_history (name, seq)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM query_history))
		ON CONFLICT(name) DO UPDATE SET seq = excluded.seq
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to record history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM query_history WHERE name NOT IN (
			SELECT name FROM query_history ORDER BY seq DESC LIMIT ?
		)
	`, s.maxHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit history: %w", err)
	}
	return s.History(ctx)
}

func (s *SQLiteStore) LastCity(ctx context.Context) (core.City, bool, error) {
	var city core.City
	err := s.db.QueryRowContext(ctx, `SELECT city_id, name FROM last_city WHERE slot = 1`).Scan(&city.ID, &city.Name)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) SetLastCity(ctx context.Context, city core.City) error {
	if !validCity(city) {
		return core.NewInvalidInputError("city id and name are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_city (slot, city_id, name, updated_at) VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET city_id = excluded.city_id, name = excluded.name, updated_at = excluded.updated_at
	`, city.ID, city.Name)
	if err != nil {
		return fmt.Errorf("failed to store last city: %w", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
