//go:build sqlite
// +build sqlite

package registry

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

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
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

func (s *sqliteStore) Upsert(ctx context.Context, userID int64, username, displayName string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	// First contact wins for username/display_name/first_seen; later
	// interactions only advance last_interaction.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, display_name, first_seen, last_interaction)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET last_interaction=excluded.last_interaction`,
		userID, username, displayName, now, now,
	)
	return err
}

func (s *sqliteStore) AppendLink(ctx context.Context, userID int64, link, linkType string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links(user_id, link, link_type, at) VALUES(?,?,?,?)`,
		userID, link, linkType, now,
	)
	return err
}

func (s *sqliteStore) Users(ctx context.Context) (map[int64]UserRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, display_name, first_seen, last_interaction FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]UserRecord{}
	for rows.Next() {
		var id int64
		var rec UserRecord
		var first, last string
		if err := rows.Scan(&id, &rec.Username, &rec.DisplayName, &first, &last); err != nil {
			return nil, err
		}
		rec.FirstSeen, _ = time.Parse(time.RFC3339Nano, first)
		rec.LastInteraction, _ = time.Parse(time.RFC3339Nano, last)
		out[id] = rec
	}
	return out, rows.Err()
}

func (s *sqliteStore) Links(ctx context.Context) (map[int64][]LinkRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, link, link_type, at FROM links ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64][]LinkRecord{}
	for rows.Next() {
		var id int64
		var rec LinkRecord
		var at string
		if err := rows.Scan(&id, &rec.Link, &rec.Type, &at); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, at)
		out[id] = append(out[id], rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UserIDs(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
