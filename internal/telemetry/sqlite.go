package telemetry

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/ravenmoor/deepspire/internal/platform/storage/sqlitemigrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteSink appends events to a SQLite database file.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the telemetry database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry db path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// serialise writers; sqlite handles one writer at a time
	db.SetMaxOpenConns(1)
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load telemetry migrations: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), db, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts one event row.
func (s *SQLiteSink) Append(ctx context.Context, evt Event) error {
	payload := []byte("{}")
	if len(evt.Payload) > 0 {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payload = data
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO game_events (recorded_at, kind, user_id, game_id, trace_id, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		evt.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), evt.Kind, evt.UserID, evt.GameID, evt.TraceID, string(payload))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Count returns the number of stored events of a kind; empty kind counts all.
func (s *SQLiteSink) Count(ctx context.Context, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM game_events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
