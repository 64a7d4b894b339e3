package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/authguard/internal/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    client_ip TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    ts INTEGER NOT NULL,
    resource TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL,
    failure_reason TEXT NOT NULL DEFAULT '',
    additional_data TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_type_ts ON audit_events (event_type, ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_ip_ts ON audit_events (client_ip, ts);
`

const eventColumns = `id, event_type, user_id, client_ip, user_agent, ts, resource, action, success,
failure_reason, additional_data`

// SQLiteStore persists audit events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path, sqliteSchema)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	data := []byte("{}")
	if len(e.AdditionalData) > 0 {
		var err error
		if data, err = json.Marshal(e.AdditionalData); err != nil {
			return fmt.Errorf("encode additional data: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.UserID, e.ClientIP, e.UserAgent, e.Timestamp.UnixNano(),
		e.Resource, e.Action, boolToInt(e.Success), e.FailureReason, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func whereClause(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if !f.From.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		conds = append(conds, "ts < ?")
		args = append(args, f.To.UnixNano())
	}
	if f.Type != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(f.Type))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ClientIP != "" {
		conds = append(conds, "client_ip = ?")
		args = append(args, f.ClientIP)
	}
	if f.Success != nil {
		conds = append(conds, "success = ?")
		args = append(args, boolToInt(*f.Success))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	where, args := whereClause(f)
	query := `SELECT ` + eventColumns + ` FROM audit_events` + where + ` ORDER BY ts, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e       Event
		typ     string
		ts      int64
		success int
		data    string
	)
	if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.ClientIP, &e.UserAgent, &ts,
		&e.Resource, &e.Action, &success, &e.FailureReason, &data); err != nil {
		return Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	e.Type = EventType(typ)
	e.Timestamp = time.Unix(0, ts).UTC()
	e.Success = success != 0
	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &e.AdditionalData); err != nil {
			return Event{}, fmt.Errorf("decode additional data: %w", err)
		}
	}
	return e, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// DeleteBefore implements Store.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE ts < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return int(n), nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
