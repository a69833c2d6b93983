package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"keyremap/internal/input"
	"keyremap/internal/mapping"
)

// SQLiteStore keeps mappings in a SQLite table. Rows carry a position so
// List returns insertion order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const selectMappings = `
	SELECT id, source_type, source_value, target, enabled, delay_ms, turbo, loop, stop_type, stop_value
	FROM mappings`

func (s *SQLiteStore) List(ctx context.Context) ([]mapping.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, selectMappings+" ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	ms := []mapping.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return ms, nil
}

func (s *SQLiteStore) Add(ctx context.Context, m mapping.Mapping) error {
	target, err := json.Marshal(m.Target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	stopType, stopValue := stopColumns(m.StopKey)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mappings (id, position, source_type, source_value, target, enabled, delay_ms, turbo, loop, stop_type, stop_value)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM mappings), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Source.Type), m.Source.Value, string(target), m.Enabled, m.DelayMs, m.Turbo, m.Loop, stopType, stopValue,
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			return mapping.ErrDuplicateID
		}
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, m mapping.Mapping) error {
	target, err := json.Marshal(m.Target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	stopType, stopValue := stopColumns(m.StopKey)

	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings
		SET source_type = ?, source_value = ?, target = ?, enabled = ?, delay_ms = ?, turbo = ?, loop = ?, stop_type = ?, stop_value = ?
		WHERE id = ?`,
		string(m.Source.Type), m.Source.Value, string(target), m.Enabled, m.DelayMs, m.Turbo, m.Loop, stopType, stopValue, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update mapping: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mappings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) Toggle(ctx context.Context, id string) (mapping.Mapping, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapping.Mapping{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE mappings SET enabled = NOT enabled WHERE id = ?", id)
	if err != nil {
		return mapping.Mapping{}, fmt.Errorf("toggle mapping: %w", err)
	}
	if err := requireRow(res); err != nil {
		return mapping.Mapping{}, err
	}

	m, err := scanMapping(tx.QueryRowContext(ctx, selectMappings+" WHERE id = ?", id))
	if err != nil {
		return mapping.Mapping{}, err
	}

	if err := tx.Commit(); err != nil {
		return mapping.Mapping{}, fmt.Errorf("commit toggle: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (mapping.Mapping, error) {
	var (
		m                   mapping.Mapping
		sourceType, target  string
		stopType, stopValue sql.NullString
	)
	err := row.Scan(&m.ID, &sourceType, &m.Source.Value, &target, &m.Enabled, &m.DelayMs, &m.Turbo, &m.Loop, &stopType, &stopValue)
	if err != nil {
		return mapping.Mapping{}, fmt.Errorf("scan mapping: %w", err)
	}
	m.Source.Type = input.EventType(sourceType)

	if err := json.Unmarshal([]byte(target), &m.Target); err != nil {
		return mapping.Mapping{}, fmt.Errorf("decode target of %s: %w", m.ID, err)
	}
	if stopType.Valid && stopValue.Valid {
		m.StopKey = &input.Event{Type: input.EventType(stopType.String), Value: stopValue.String}
	}
	return m, nil
}

func stopColumns(ev *input.Event) (any, any) {
	if ev == nil {
		return nil, nil
	}
	return string(ev.Type), ev.Value
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return mapping.ErrNotFound
	}
	return nil
}
