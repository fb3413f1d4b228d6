// Package sqlstore persists quota records in PostgreSQL or SQLite. The
// window map is stored as a JSON document per (hash_key, client_id) row.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/validation"
	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS quota_records (
	hash_key   TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (hash_key, client_id)
)`

const (
	selectRecord = `SELECT payload FROM quota_records WHERE hash_key = ? AND client_id = ?`
	upsertRecord = `INSERT INTO quota_records (hash_key, client_id, payload, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (hash_key, client_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
)

type Config struct {
	Dialect Dialect
	// DSN is a postgres URL for Postgres or a file path (or ":memory:") for SQLite
	DSN string
}

func (c *Config) Validate() error {
	v := validation.NewValidatorWithPrefix("SQL store config")
	v.RequireOneOf(string(c.Dialect), []string{string(Postgres), string(SQLite)}, "dialect")
	v.RequireString(c.DSN, "dsn")
	return v.Error()
}

func (c *Config) driverName() string {
	if c.Dialect == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects, pings and creates the quota table when missing
func Open(ctx context.Context, config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQL store config: %w", err)
	}

	db, err := sql.Open(config.driverName(), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.Dialect == SQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	s := &Store{db: db, dialect: config.Dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Get(ctx context.Context, hashKey, clientID string) (*quota.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(selectRecord), hashKey, clientID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.ConnectionError("select quota record", err)
	}

	rec := &quota.Record{HashKey: hashKey, ClientID: clientID}
	if err := json.Unmarshal([]byte(payload), &rec.Windows); err != nil {
		return nil, errors.InternalError("decode quota payload", err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, record *quota.Record) error {
	if err := s.upsert(ctx, s.db, record); err != nil {
		return errors.StoreWriteError("upsert quota record", err).WithContext("key", record.Key())
	}
	return nil
}

// PutBatch upserts every record in one transaction; on error none was written
func (s *Store) PutBatch(ctx context.Context, records []*quota.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreWriteError("begin quota batch", err)
	}
	for _, r := range records {
		if err := s.upsert(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			return errors.StoreWriteError("upsert quota record", err).WithContext("key", r.Key())
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreWriteError("commit quota batch", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, db execer, r *quota.Record) error {
	payload, err := json.Marshal(r.Windows)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.rebind(upsertRecord), r.HashKey, r.ClientID, string(payload), s.now().UnixMilli())
	return err
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
