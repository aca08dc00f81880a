// Package store handles SQLite persistence of analysis projects.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrProjectNotFound is returned when no project has the requested name.
var ErrProjectNotFound = errors.New("project not found")

// ErrChecksumMismatch is returned when a stored trace fails verification.
var ErrChecksumMismatch = errors.New("trace checksum mismatch")

const traceColumns = 3

// Store wraps SQLite access for saved projects.
type Store struct {
	db    *sql.DB
	codec Codec
}

// ProjectInfo summarises a saved project.
type ProjectInfo struct {
	Name      string
	Samples   int
	Sections  int
	Codec     string
	UpdatedAt time.Time
}

// Open opens or creates the SQLite database and applies migrations.
// Traces are compressed with codec ("zstd" when empty).
func Open(path, codec string) (*Store, error) {
	c, err := CodecByName(codec)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, codec: c}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			updated_at TEXT NOT NULL,
			x_label TEXT NOT NULL,
			y_label TEXT NOT NULL,
			z_label TEXT NOT NULL,
			selected_model TEXT NOT NULL,
			codec TEXT NOT NULL,
			samples INTEGER NOT NULL,
			raw_size INTEGER NOT NULL,
			checksum INTEGER NOT NULL,
			trace BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS project_sections (
			project_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			from_x REAL NOT NULL,
			to_x REAL NOT NULL,
			fit_type TEXT NOT NULL,
			y0 REAL,
			a1 REAL,
			tau1 REAL,
			a2 REAL,
			tau2 REAL,
			tau90_state INTEGER NOT NULL,
			tau90 REAL,
			comment TEXT NOT NULL,
			prev_y0 REAL,
			PRIMARY KEY (project_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS project_knees (
			project_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			x REAL NOT NULL,
			PRIMARY KEY (project_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveProject stores the session under name, replacing any project of the same name.
func (s *Store) SaveProject(ctx context.Context, name string, sess *section.Session) (err error) {
	if name == "" {
		return fmt.Errorf("project name is empty")
	}
	if sess == nil || sess.Trace == nil {
		return fmt.Errorf("project %q has no trace", name)
	}
	tr := sess.Trace
	if err := tr.Validate(); err != nil {
		return err
	}
	raw := packColumns(tr.X, tr.Y, tr.C)
	blob, err := s.codec.Compress(raw)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = deleteByName(ctx, tx, name); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO projects (name, updated_at, x_label, y_label, z_label, selected_model, codec, samples, raw_size, checksum, trace)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name,
		time.Now().UTC().Format(time.RFC3339Nano),
		tr.XLabel,
		tr.YLabel,
		tr.ZLabel,
		string(sess.Selected),
		s.codec.Name(),
		tr.Len(),
		len(raw),
		checksum(raw),
		blob,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err = insertSections(ctx, tx, id, sess.Sections); err != nil {
		return err
	}
	for pos, x := range sess.Knees {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO project_knees (project_id, position, x) VALUES (?, ?, ?)`, id, pos, x); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertSections(ctx context.Context, tx *sql.Tx, id int64, sections []*model.Section) error {
	if len(sections) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO project_sections (project_id, position, from_x, to_x, fit_type, y0, a1, tau1, a2, tau2, tau90_state, tau90, comment, prev_y0)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for pos, sec := range sections {
		var tau90 sql.NullFloat64
		if sec.Tau90.State == model.T90Value {
			tau90 = sql.NullFloat64{Float64: sec.Tau90.Value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, pos, sec.From, sec.To, string(sec.Type),
			nullable(sec.Y0), nullable(sec.A1), nullable(sec.Tau1), nullable(sec.A2), nullable(sec.Tau2),
			int(sec.Tau90.State), tau90, sec.Comment, nullable(sec.PrevY0)); err != nil {
			return err
		}
	}
	return nil
}

// LoadProject rebuilds a saved session. The caller attaches a coordinator before fitting.
func (s *Store) LoadProject(ctx context.Context, name string) (*section.Session, error) {
	var (
		id                     int64
		xLabel, yLabel, zLabel string
		selected, codecName    string
		samples, rawSize       int
		sum                    int64
		blob                   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, x_label, y_label, z_label, selected_model, codec, samples, raw_size, checksum, trace
		 FROM projects WHERE name = ?`, name).
		Scan(&id, &xLabel, &yLabel, &zLabel, &selected, &codecName, &samples, &rawSize, &sum, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	codec, err := CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(blob, rawSize)
	if err != nil {
		return nil, err
	}
	if checksum(raw) != sum {
		return nil, fmt.Errorf("%w: project %s", ErrChecksumMismatch, name)
	}
	cols, err := unpackColumns(raw, traceColumns)
	if err != nil {
		return nil, err
	}
	if len(cols[0]) != samples {
		return nil, fmt.Errorf("project %s: expected %d samples, found %d", name, samples, len(cols[0]))
	}

	sess := &section.Session{
		Trace: &model.Trace{
			X: cols[0], Y: cols[1], C: cols[2],
			XLabel: xLabel, YLabel: yLabel, ZLabel: zLabel,
		},
		Selected: model.FitType(selected),
	}
	if sess.Sections, err = s.loadSections(ctx, id); err != nil {
		return nil, err
	}
	if sess.Knees, err = s.loadKnees(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) loadSections(ctx context.Context, id int64) ([]*model.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_x, to_x, fit_type, y0, a1, tau1, a2, tau2, tau90_state, tau90, comment, prev_y0
		 FROM project_sections WHERE project_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sections []*model.Section
	for rows.Next() {
		var (
			sec                    model.Section
			fitType                string
			y0, a1, tau1, a2, tau2 sql.NullFloat64
			prev, tau90            sql.NullFloat64
			state                  int
		)
		if err := rows.Scan(&sec.From, &sec.To, &fitType, &y0, &a1, &tau1, &a2, &tau2, &state, &tau90, &sec.Comment, &prev); err != nil {
			return nil, err
		}
		sec.Index = len(sections) + 1
		sec.Type = model.FitType(fitType)
		sec.Y0, sec.A1, sec.Tau1 = optional(y0), optional(a1), optional(tau1)
		sec.A2, sec.Tau2, sec.PrevY0 = optional(a2), optional(tau2), optional(prev)
		sec.Tau90 = model.T90{State: model.T90State(state), Value: tau90.Float64}
		sections = append(sections, &sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *Store) loadKnees(ctx context.Context, id int64) (model.Knees, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x FROM project_knees WHERE project_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var knees model.Knees
	for rows.Next() {
		var x float64
		if err := rows.Scan(&x); err != nil {
			return nil, err
		}
		knees = append(knees, x)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return knees, nil
}

// ListProjects returns saved projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.name, p.samples, p.codec, p.updated_at,
			(SELECT COUNT(*) FROM project_sections ps WHERE ps.project_id = p.id)
		 FROM projects p
		 ORDER BY p.updated_at DESC, p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var projects []ProjectInfo
	for rows.Next() {
		var info ProjectInfo
		var updatedAt string
		if err := rows.Scan(&info.Name, &info.Samples, &info.Codec, &updatedAt, &info.Sections); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, err
		}
		info.UpdatedAt = parsed
		projects = append(projects, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes a project and its sections and knees.
func (s *Store) DeleteProject(ctx context.Context, name string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	found, err := deleteByName(ctx, tx, name)
	if err != nil {
		return err
	}
	if !found {
		err = fmt.Errorf("%w: %s", ErrProjectNotFound, name)
		return err
	}
	return tx.Commit()
}

func deleteByName(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, stmt := range []string{
		`DELETE FROM project_sections WHERE project_id = ?`,
		`DELETE FROM project_knees WHERE project_id = ?`,
		`DELETE FROM projects WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return false, err
		}
	}
	return true, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func optional(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}
