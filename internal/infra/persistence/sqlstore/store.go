// Package sqlstore implements domain.Store over database/sql with the
// tracks, track_sections and track_section_steps tables. Dialects adapt
// placeholder syntax for the sqlite and postgres drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"stepseq/pkg/domain"

	"github.com/google/uuid"
)

var _ domain.Store = (*Store)(nil)

// Dialect describes driver specific SQL details.
type Dialect struct {
	Name string
	// Numbered rewrites ? placeholders to $1, $2, ...
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// Rebind rewrites a query written with ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
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

// Schema is applied by Migrate. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		mute BOOLEAN NOT NULL DEFAULT FALSE,
		solo BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS track_sections (
		id TEXT PRIMARY KEY,
		track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		"index" INTEGER NOT NULL,
		step_count INTEGER NOT NULL CHECK (step_count > 0),
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS track_section_steps (
		id TEXT PRIMARY KEY,
		track_section_id TEXT NOT NULL REFERENCES track_sections(id) ON DELETE CASCADE,
		"index" INTEGER NOT NULL,
		note TEXT,
		file_id TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tracks_project_idx ON tracks(project_id)`,
	`CREATE INDEX IF NOT EXISTS track_sections_track_idx ON track_sections(track_id)`,
	`CREATE INDEX IF NOT EXISTS track_section_steps_section_idx ON track_section_steps(track_section_id)`,
}

// Store is a relational domain.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	clock   atomic.Int64
	newID   func() domain.ID
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		newID:   func() domain.ID { return domain.ID(uuid.NewString()) },
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// createdAt is strictly increasing so rows created within the same clock tick
// keep their creation order.
func (s *Store) createdAt() int64 {
	for {
		prev := s.clock.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if s.clock.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func (s *Store) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exists(ctx context.Context, table string, id domain.ID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT 1 FROM "+table+" WHERE id = ?"), string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", table, id, err)
	}
	return true, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Create inserts the entity with a new id after checking that its parent exists.
func (s *Store) Create(ctx context.Context, entity domain.Entity) (domain.ID, error) {
	id := s.newID()
	now := s.createdAt()
	switch e := entity.(type) {
	case domain.Track:
		_, err := s.exec(ctx, s.db, `INSERT INTO tracks (id, project_id, name, mute, solo, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), string(e.ProjectID), e.Name, e.Mute, e.Solo, now)
		if err != nil {
			return "", fmt.Errorf("insert track: %w", err)
		}
	case domain.Section:
		ok, err := s.exists(ctx, "tracks", e.TrackID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.ErrNotFound{Entity: domain.EntityTrack, ID: e.TrackID}
		}
		_, err = s.exec(ctx, s.db, `INSERT INTO track_sections (id, track_id, "index", step_count, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(id), string(e.TrackID), e.Index, e.StepCount, now)
		if err != nil {
			return "", fmt.Errorf("insert section: %w", err)
		}
	case domain.Step:
		ok, err := s.exists(ctx, "track_sections", e.SectionID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.ErrNotFound{Entity: domain.EntitySection, ID: e.SectionID}
		}
		note, fileID := e.Columns()
		_, err = s.exec(ctx, s.db, `INSERT INTO track_section_steps (id, track_section_id, "index", note, file_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), string(e.SectionID), e.Index, nullable(note), nullable(string(fileID)), now)
		if err != nil {
			return "", fmt.Errorf("insert step: %w", err)
		}
	default:
		return "", fmt.Errorf("create: unsupported entity %T", entity)
	}
	return id, nil
}

// Update overwrites the mutable columns of an existing row.
func (s *Store) Update(ctx context.Context, entity domain.Entity) error {
	var (
		res sql.Result
		err error
	)
	switch e := entity.(type) {
	case domain.Track:
		res, err = s.exec(ctx, s.db, `UPDATE tracks SET name = ?, mute = ?, solo = ? WHERE id = ?`,
			e.Name, e.Mute, e.Solo, string(e.ID))
	case domain.Section:
		res, err = s.exec(ctx, s.db, `UPDATE track_sections SET "index" = ?, step_count = ? WHERE id = ?`,
			e.Index, e.StepCount, string(e.ID))
	case domain.Step:
		note, fileID := e.Columns()
		res, err = s.exec(ctx, s.db, `UPDATE track_section_steps SET "index" = ?, note = ?, file_id = ? WHERE id = ?`,
			e.Index, nullable(note), nullable(string(fileID)), string(e.ID))
	default:
		return fmt.Errorf("update: unsupported entity %T", entity)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", entity.EntityType(), entity.EntityID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: rows affected: %w", entity.EntityType(), err)
	}
	if n == 0 {
		return domain.ErrNotFound{Entity: entity.EntityType(), ID: entity.EntityID()}
	}
	return nil
}

// Delete removes a row and its descendants in one transaction. Deleting a
// missing row succeeds.
func (s *Store) Delete(ctx context.Context, kind domain.EntityType, id domain.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stmts []string
	switch kind {
	case domain.EntityTrack:
		stmts = []string{
			`DELETE FROM track_section_steps WHERE track_section_id IN (SELECT id FROM track_sections WHERE track_id = ?)`,
			`DELETE FROM track_sections WHERE track_id = ?`,
			`DELETE FROM tracks WHERE id = ?`,
		}
	case domain.EntitySection:
		stmts = []string{
			`DELETE FROM track_section_steps WHERE track_section_id = ?`,
			`DELETE FROM track_sections WHERE id = ?`,
		}
	case domain.EntityStep:
		stmts = []string{`DELETE FROM track_section_steps WHERE id = ?`}
	default:
		return fmt.Errorf("delete: unknown entity type %q", kind)
	}
	for _, stmt := range stmts {
		if _, err := s.exec(ctx, tx, stmt, string(id)); err != nil {
			return fmt.Errorf("delete %s %s: %w", kind, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// List returns the children of parentID.
func (s *Store) List(ctx context.Context, kind domain.EntityType, parentID domain.ID) ([]domain.Entity, error) {
	var query string
	switch kind {
	case domain.EntityTrack:
		query = `SELECT id, project_id, name, mute, solo FROM tracks WHERE project_id = ? ORDER BY created_at, id`
	case domain.EntitySection:
		query = `SELECT id, track_id, "index", step_count FROM track_sections WHERE track_id = ? ORDER BY "index", created_at, id`
	case domain.EntityStep:
		query = `SELECT id, track_section_id, "index", note, file_id FROM track_section_steps WHERE track_section_id = ? ORDER BY created_at, id`
	default:
		return nil, fmt.Errorf("list: unknown entity type %q", kind)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), string(parentID))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Entity
	for rows.Next() {
		e, err := scan(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

func scan(kind domain.EntityType, rows *sql.Rows) (domain.Entity, error) {
	switch kind {
	case domain.EntityTrack:
		var t domain.Track
		var id, project string
		if err := rows.Scan(&id, &project, &t.Name, &t.Mute, &t.Solo); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.ID, t.ProjectID = domain.ID(id), domain.ID(project)
		return t, nil
	case domain.EntitySection:
		var sec domain.Section
		var id, track string
		if err := rows.Scan(&id, &track, &sec.Index, &sec.StepCount); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.ID, sec.TrackID = domain.ID(id), domain.ID(track)
		return sec, nil
	default:
		var id, section string
		var index int
		var note, fileID sql.NullString
		if err := rows.Scan(&id, &section, &index, &note, &fileID); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step, err := domain.StepFromColumns(domain.ID(id), domain.ID(section), index, note.String, domain.ID(fileID.String))
		if err != nil {
			return nil, fmt.Errorf("decode step %s: %w", id, err)
		}
		return step, nil
	}
}
