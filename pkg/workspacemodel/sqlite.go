package workspacemodel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS modules (
	name TEXT PRIMARY KEY,
	target_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	module_deps TEXT NOT NULL,   -- JSON array
	library_deps TEXT NOT NULL,  -- JSON array
	build_target TEXT            -- JSON object
);

CREATE TABLE IF NOT EXISTS content_roots (
	module_name TEXT NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	package_prefix TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	PRIMARY KEY (module_name, path),
	FOREIGN KEY (module_name) REFERENCES modules(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ownership (
	path TEXT NOT NULL,
	target_id TEXT NOT NULL,
	PRIMARY KEY (path, target_id)
);

CREATE TABLE IF NOT EXISTS transactions (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	changes INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_roots_path ON content_roots(path);
`

// SQLitePersister keeps the project model in a SQLite database
type SQLitePersister struct {
	conn *sql.DB
	path string
}

var _ Persister = (*SQLitePersister)(nil)

// OpenSQLite opens (and creates if needed) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLitePersister{conn: conn, path: path}, nil
}

// Close checkpoints the WAL and closes the database
func (p *SQLitePersister) Close() error {
	if p.conn == nil {
		return nil
	}
	_, _ = p.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	p.conn = nil
	return nil
}

// Persist rewrites the stored model with snap in a single transaction
func (p *SQLitePersister) Persist(ctx context.Context, txInfo Transaction, snap *Snapshot) error {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM content_roots",
		"DELETE FROM modules",
		"DELETE FROM ownership",
		"DELETE FROM targets",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear tables: %w", err)
		}
	}

	for _, id := range snap.Targets() {
		if _, err := tx.ExecContext(ctx, "INSERT INTO targets (id) VALUES (?)", string(id)); err != nil {
			return fmt.Errorf("failed to insert target %s: %w", id, err)
		}
	}

	for _, m := range snap.Modules() {
		if err := insertModule(ctx, tx, m); err != nil {
			return err
		}
	}

	paths := make([]string, 0, len(snap.ownership))
	for path := range snap.ownership {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		for _, id := range snap.ownership[path] {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO ownership (path, target_id) VALUES (?, ?)", path, string(id)); err != nil {
				return fmt.Errorf("failed to insert ownership of %s: %w", path, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO transactions (version, name, changes, applied_at) VALUES (?, ?, ?, ?)",
		int64(txInfo.Version), txInfo.Name, txInfo.Changes, txInfo.Time.UTC().Format("2006-01-02T15:04:05.000Z")); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertModule(ctx context.Context, tx *sql.Tx, m *ModuleEntity) error {
	moduleDeps, err := json.Marshal(nonNil(m.ModuleDependencies))
	if err != nil {
		return fmt.Errorf("failed to encode module dependencies of %s: %w", m.Name, err)
	}
	libraryDeps, err := json.Marshal(nonNil(m.LibraryDependencies))
	if err != nil {
		return fmt.Errorf("failed to encode library dependencies of %s: %w", m.Name, err)
	}
	var buildTarget sql.NullString
	if m.BuildTarget != nil {
		data, err := json.Marshal(m.BuildTarget)
		if err != nil {
			return fmt.Errorf("failed to encode build target of %s: %w", m.Name, err)
		}
		buildTarget = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO modules (name, target_id, kind, source, module_deps, library_deps, build_target)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Name, string(m.TargetID), string(m.Kind), string(m.Source),
		string(moduleDeps), string(libraryDeps), buildTarget); err != nil {
		return fmt.Errorf("failed to insert module %s: %w", m.Name, err)
	}

	for i, root := range m.ContentRoots {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO content_roots (module_name, path, kind, package_prefix, position) VALUES (?, ?, ?, ?, ?)",
			m.Name, root.Path, string(root.Kind), root.PackagePrefix, i); err != nil {
			return fmt.Errorf("failed to insert content root %s of %s: %w", root.Path, m.Name, err)
		}
	}
	return nil
}

// Load reads the stored model. It returns nil if nothing was stored yet.
func (p *SQLitePersister) Load(ctx context.Context) (*Snapshot, error) {
	snap := emptySnapshot()

	var version sql.NullInt64
	if err := p.conn.QueryRowContext(ctx, "SELECT MAX(version) FROM transactions").Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to read model version: %w", err)
	}
	if !version.Valid {
		return nil, nil
	}
	snap.version = uint64(version.Int64)

	if err := p.loadTargets(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadModules(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadOwnership(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *SQLitePersister) loadTargets(ctx context.Context, snap *Snapshot) error {
	rows, err := p.conn.QueryContext(ctx, "SELECT id FROM targets")
	if err != nil {
		return fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan target: %w", err)
		}
		snap.targets[model.Label(id)] = true
	}
	return rows.Err()
}

func (p *SQLitePersister) loadModules(ctx context.Context, snap *Snapshot) error {
	rows, err := p.conn.QueryContext(ctx, `
		SELECT name, target_id, kind, source, module_deps, library_deps, build_target
		FROM modules`)
	if err != nil {
		return fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m                       ModuleEntity
			targetID, kind, source  string
			moduleDeps, libraryDeps string
			buildTarget             sql.NullString
		)
		if err := rows.Scan(&m.Name, &targetID, &kind, &source, &moduleDeps, &libraryDeps, &buildTarget); err != nil {
			return fmt.Errorf("failed to scan module: %w", err)
		}
		m.TargetID = model.Label(targetID)
		m.Kind = model.TargetKind(kind)
		m.Source = EntitySource(source)
		if err := json.Unmarshal([]byte(moduleDeps), &m.ModuleDependencies); err != nil {
			return fmt.Errorf("failed to decode module dependencies of %s: %w", m.Name, err)
		}
		if err := json.Unmarshal([]byte(libraryDeps), &m.LibraryDependencies); err != nil {
			return fmt.Errorf("failed to decode library dependencies of %s: %w", m.Name, err)
		}
		if buildTarget.Valid {
			m.BuildTarget = &languages.BuildTarget{}
			if err := json.Unmarshal([]byte(buildTarget.String), m.BuildTarget); err != nil {
				return fmt.Errorf("failed to decode build target of %s: %w", m.Name, err)
			}
		}
		snap.modules[m.Name] = &m
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	roots, err := p.conn.QueryContext(ctx,
		"SELECT module_name, path, kind, package_prefix FROM content_roots ORDER BY module_name, position")
	if err != nil {
		return fmt.Errorf("failed to query content roots: %w", err)
	}
	defer roots.Close()

	for roots.Next() {
		var name, path, kind, prefix string
		if err := roots.Scan(&name, &path, &kind, &prefix); err != nil {
			return fmt.Errorf("failed to scan content root: %w", err)
		}
		if m, ok := snap.modules[name]; ok {
			m.ContentRoots = append(m.ContentRoots, ContentRoot{Path: path, Kind: ContentKind(kind), PackagePrefix: prefix})
		}
	}
	return roots.Err()
}

func (p *SQLitePersister) loadOwnership(ctx context.Context, snap *Snapshot) error {
	rows, err := p.conn.QueryContext(ctx, "SELECT path, target_id FROM ownership ORDER BY path, target_id")
	if err != nil {
		return fmt.Errorf("failed to query ownership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, id string
		if err := rows.Scan(&path, &id); err != nil {
			return fmt.Errorf("failed to scan ownership: %w", err)
		}
		snap.ownership[path] = append(snap.ownership[path], model.Label(id))
	}
	return rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
