package principal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/authguard/internal/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS principals (
    id TEXT PRIMARY KEY,
    value_hash TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    enabled INTEGER NOT NULL DEFAULT 1,
    permissions TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}'
);
`

const principalColumns = `id, description, created_at, expires_at, enabled, permissions, metadata`

// SQLiteStore keeps principals in SQLite. Credentials are stored only as
// SHA-256 hashes, so principals read back carry no SecretValue.
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

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// FindByValue looks up the principal owning value.
func (s *SQLiteStore) FindByValue(ctx context.Context, value string) (*Info, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE value_hash = ?`, hashValue(value))
	return scanPrincipal(row)
}

// FindByID looks up the principal with id.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*Info, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

// Exists reports whether value is a known credential.
func (s *SQLiteStore) Exists(ctx context.Context, value string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM principals WHERE value_hash = ?`, hashValue(value)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Put inserts or updates p by ID.
func (s *SQLiteStore) Put(ctx context.Context, p *Info) error {
	perms, err := json.Marshal(p.Permissions)
	if err != nil {
		return err
	}
	meta := []byte("{}")
	if len(p.Metadata) > 0 {
		if meta, err = json.Marshal(p.Metadata); err != nil {
			return err
		}
	}

	var expires sql.NullInt64
	if p.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: p.ExpiresAt.UnixNano(), Valid: true}
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO principals (id, value_hash, description, created_at, expires_at, enabled, permissions, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    value_hash = excluded.value_hash,
    description = excluded.description,
    expires_at = excluded.expires_at,
    enabled = excluded.enabled,
    permissions = excluded.permissions,
    metadata = excluded.metadata`,
		p.ID, hashValue(p.SecretValue), p.Description, created.UnixNano(), expires,
		p.Enabled, string(perms), string(meta))
	if err != nil {
		return fmt.Errorf("put principal %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes the principal with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete principal %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanPrincipal(row *sql.Row) (*Info, error) {
	var (
		p           Info
		createdAt   int64
		expiresAt   sql.NullInt64
		permissions string
		metadata    string
	)
	err := row.Scan(&p.ID, &p.Description, &createdAt, &expiresAt, &p.Enabled, &permissions, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.CreatedAt = time.Unix(0, createdAt)
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64)
		p.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(permissions), &p.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", p.ID, err)
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	return &p, nil
}
