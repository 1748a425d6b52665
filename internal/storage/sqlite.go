package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tgintel/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutEntity(ctx context.Context, rec EntityRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(rec.Key) == "" {
		return nil
	}
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities(key, kind, id, username, title, resolved_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET
		   kind=excluded.kind, id=excluded.id, username=excluded.username,
		   title=excluded.title, resolved_at=excluded.resolved_at`,
		rec.Key, rec.Kind, rec.ID, nullStr(rec.Username), nullStr(rec.Title),
		rec.ResolvedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetEntity(ctx context.Context, key string) (EntityRecord, bool, error) {
	if s == nil || s.db == nil {
		return EntityRecord{}, false, ErrDisabled
	}
	if strings.TrimSpace(key) == "" {
		return EntityRecord{}, false, nil
	}
	var (
		rec      EntityRecord
		username sql.NullString
		title    sql.NullString
		at       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, kind, id, username, title, resolved_at FROM entities WHERE key = ?`, key,
	).Scan(&rec.Key, &rec.Kind, &rec.ID, &username, &title, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return EntityRecord{}, false, nil
	}
	if err != nil {
		return EntityRecord{}, false, err
	}
	rec.Username = username.String
	rec.Title = title.String
	if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
		rec.ResolvedAt = t
	}
	return rec, true, nil
}

func (s *sqliteStore) AppendFlood(ctx context.Context, ev FloodEvent) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO floods(at, category, seconds) VALUES(?,?,?)`,
		ev.At.Format(time.RFC3339Nano), ev.Category, ev.Seconds,
	)
	return err
}

func (s *sqliteStore) RecordScan(ctx context.Context, rec ScanRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans(at, target, messages, took_ms, err) VALUES(?,?,?,?,?)`,
		rec.At.Format(time.RFC3339Nano), rec.Target, rec.Messages, rec.TookMS, nullStr(rec.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
