/*
 * arachne-fileset: immutable, content-addressed filesets
 * Copyright © 2026 arachne-fileset contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package commit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/arachne-framework/arachne-fileset/fileset"
)

//go:embed migrations/*.sql
var migrations embed.FS

const dbPragmas = "?_foreign_keys=ON&_journal_mode=WAL&_synchronous=NORMAL"

// SQLiteShadowStore persists shadow state in a SQLite database, so
// commit history survives process restarts. It is the store a host
// application wires in by default; MemoryShadowStore exists for tests
// and short-lived tools that don't need durability.
type SQLiteShadowStore struct {
	db *sql.DB
}

// OpenSQLiteShadowStore opens (creating if necessary) a SQLite database
// at path and migrates it to the current schema.
func OpenSQLiteShadowStore(ctx context.Context, path string) (*SQLiteShadowStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s%s", path, dbPragmas))
	if err != nil {
		return nil, fmt.Errorf("commit: open shadow database %s: %w", path, err)
	}

	provider, err := gooseProvider(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("commit: prepare migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("commit: migrate shadow database: %w", err)
	}

	return &SQLiteShadowStore{db: db}, nil
}

func gooseProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("prepare migrations fs: %w", err)
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// Close releases the underlying database handle.
func (s *SQLiteShadowStore) Close() error { return s.db.Close() }

func (s *SQLiteShadowStore) Load(canonicalDir string) (ShadowEntry, bool, error) {
	row := s.db.QueryRow(
		`SELECT last_modified_ms, commit_id, entries_json FROM shadow_state WHERE target_dir = ?`,
		canonicalDir,
	)

	var lastModified int64
	var commitID, entriesJSON string
	if err := row.Scan(&lastModified, &commitID, &entriesJSON); err != nil {
		if err == sql.ErrNoRows {
			return ShadowEntry{}, false, nil
		}
		return ShadowEntry{}, false, fmt.Errorf("commit: load shadow state for %s: %w", canonicalDir, err)
	}

	var snapshot []fileset.EntrySnapshot
	if err := json.Unmarshal([]byte(entriesJSON), &snapshot); err != nil {
		return ShadowEntry{}, false, fmt.Errorf("commit: decode shadow state for %s: %w", canonicalDir, err)
	}

	return ShadowEntry{Snapshot: snapshot, LastModifiedMs: lastModified, CommitID: commitID}, true, nil
}

func (s *SQLiteShadowStore) Save(canonicalDir string, entry ShadowEntry) error {
	encoded, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("commit: encode shadow state for %s: %w", canonicalDir, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO shadow_state (target_dir, last_modified_ms, commit_id, entries_json)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(target_dir) DO UPDATE SET
		   last_modified_ms = excluded.last_modified_ms,
		   commit_id = excluded.commit_id,
		   entries_json = excluded.entries_json`,
		canonicalDir, entry.LastModifiedMs, entry.CommitID, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("commit: save shadow state for %s: %w", canonicalDir, err)
	}
	return nil
}
