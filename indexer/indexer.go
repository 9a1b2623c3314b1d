// Package indexer records committed block outcomes and their events in
// SQLite so they can be searched by kind, height and attribute.
package indexer

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/blockberries/dao/indexer/migrations"
	"github.com/blockberries/dao/types"
)

const migrationTable = "schema_migrations"

// Indexer persists events in SQLite.
type Indexer struct {
	db *sql.DB
}

// Open opens the index at path, or an in-memory index when path is
// empty, and applies the schema migrations.
func Open(path string) (*Indexer, error) {
	dsn := "file::memory:"
	if p := strings.TrimSpace(path); p != "" {
		p = filepath.Clean(p)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		dsn = "file:" + p
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// writes are serialized by Commit anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Indexer{db: db}, nil
}

// Close closes the database.
func (x *Indexer) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	for _, file := range files {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name) VALUES (?)`, file); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between the Up and Down markers.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

// IndexBlock records a committed block. Re-indexing a height replaces it.
func (x *Indexer) IndexBlock(ctx context.Context, height, blockTime uint64, outcome types.BlockOutcome) (err error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index block %d: %w", height, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM blocks WHERE height = ?`, height); err != nil {
		return fmt.Errorf("clear block %d: %w", height, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO blocks (height, block_time, app_hash, tx_count) VALUES (?, ?, ?, ?)`,
		height, blockTime, hex.EncodeToString(outcome.AppHash[:]), len(outcome.TxOutcomes),
	); err != nil {
		return fmt.Errorf("insert block %d: %w", height, err)
	}

	for _, o := range outcome.TxOutcomes {
		kind, sender := txIdentity(o.Events)
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO txs (height, tx_index, code, info, kind, sender) VALUES (?, ?, ?, ?, ?, ?)`,
			height, o.Index, o.Code, o.Info, kind, sender,
		); err != nil {
			return fmt.Errorf("insert tx %d/%d: %w", height, o.Index, err)
		}
		for i, ev := range o.Events {
			if err = insertEvent(ctx, tx, height, int64(o.Index), i, ev); err != nil {
				return err
			}
		}
	}
	// Block-level events have no transaction.
	for i, ev := range outcome.BlockEvents {
		if err = insertEvent(ctx, tx, height, -1, i, ev); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit index block %d: %w", height, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, height uint64, txIndex int64, eventIndex int, ev types.Event) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (height, tx_index, event_index, kind) VALUES (?, ?, ?, ?)`,
		height, txIndex, eventIndex, ev.Kind)
	if err != nil {
		return fmt.Errorf("insert event %s at %d: %w", ev.Kind, height, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, a := range ev.Attributes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_attributes (event_id, key, value, indexed) VALUES (?, ?, ?, ?)`,
			id, a.Key, a.Value, a.Index,
		); err != nil {
			return fmt.Errorf("insert attribute %s: %w", a.Key, err)
		}
	}
	return nil
}

// txIdentity reads the kind and sender from the leading "tx" event.
func txIdentity(events []types.Event) (kind, sender string) {
	if len(events) == 0 || events[0].Kind != "tx" {
		return "", ""
	}
	kind, _ = events[0].Get("kind")
	sender, _ = events[0].Get("sender")
	return kind, sender
}

// LastHeight is the highest indexed height, 0 for an empty index.
func (x *Indexer) LastHeight(ctx context.Context) (uint64, error) {
	var h sql.NullInt64
	if err := x.db.QueryRowContext(ctx, `SELECT MAX(height) FROM blocks`).Scan(&h); err != nil {
		return 0, err
	}
	return uint64(h.Int64), nil
}
