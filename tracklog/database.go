// Package tracklog records the session's positions and station events to
// a per-session sqlite database and exports them.
package tracklog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS position (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	geom BLOB NOT NULL,
	FOREIGN KEY(session_id) REFERENCES session(id)
);

CREATE INDEX IF NOT EXISTS position_time_idx ON position (session_id, recorded_at);

CREATE TABLE IF NOT EXISTS event (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	type TEXT NOT NULL,
	source TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(session_id) REFERENCES session(id)
);
`

// Store is one session's database. A new file is created per session and
// never reopened.
type Store struct {
	db         *sql.DB
	session    string
	path       string
	startedAt  time.Time
	toMercator wgs84.Func
}

// Open creates dir/track_<timestamp>.db. An empty dir keeps the session in
// memory.
func Open(dir string) (*Store, error) {
	now := time.Now()
	path := ":memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("track_%s.db", now.Format("2006-01-02_15-04-05")))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track database: %w", err)
	}
	// one connection: an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping track database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create track schema: %w", err)
	}

	s := &Store{
		db:         db,
		session:    uuid.NewString(),
		path:       path,
		startedAt:  now,
		toMercator: wgs84.EPSG().Transform(4326, 3857),
	}
	if _, err := db.Exec(`INSERT INTO session (id, started_at) VALUES (?, ?)`, s.session, now.UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func (s *Store) Session() string      { return s.session }
func (s *Store) Path() string         { return s.path }
func (s *Store) StartedAt() time.Time { return s.startedAt }

// InsertPositions writes samples in one transaction. X, Y and the WKB point
// are derived from latitude and longitude.
func (s *Store) InsertPositions(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO position (session_id, recorded_at, latitude, longitude, x, y, geom) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		x, y, _ := s.toMercator(smp.Longitude, smp.Latitude, 0)
		pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Type: geom.DimXY})
		if err != nil {
			return fmt.Errorf("invalid position %f,%f: %w", smp.Latitude, smp.Longitude, err)
		}
		if _, err := stmt.ExecContext(ctx, s.session, smp.RecordedAt.UTC(), smp.Latitude, smp.Longitude, x, y, pt.AsBinary()); err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit positions: %w", err)
	}
	return nil
}

// InsertEntry writes one event.
func (s *Store) InsertEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event (session_id, recorded_at, type, source, detail) VALUES (?, ?, ?, ?, ?)`,
		s.session, e.RecordedAt.UTC(), e.Type, e.Source, e.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Positions returns the session's samples in recording order.
func (s *Store) Positions(ctx context.Context) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, latitude, longitude, x, y FROM position WHERE session_id = ? ORDER BY id`, s.session)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.RecordedAt, &smp.Latitude, &smp.Longitude, &smp.X, &smp.Y); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// Entries returns the session's events in recording order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, type, source, detail FROM event WHERE session_id = ? ORDER BY id`, s.session)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Type, &e.Source, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns how many positions and events are stored.
func (s *Store) Counts(ctx context.Context) (positions, events int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM position WHERE session_id = ?), (SELECT COUNT(*) FROM event WHERE session_id = ?)`,
		s.session, s.session).Scan(&positions, &events)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count records: %w", err)
	}
	return positions, events, nil
}

// PointAt decodes the stored WKB geometry of one position.
func (s *Store) PointAt(ctx context.Context, id int64) (geom.Point, error) {
	var wkb []byte
	if err := s.db.QueryRowContext(ctx, `SELECT geom FROM position WHERE id = ?`, id).Scan(&wkb); err != nil {
		return geom.Point{}, fmt.Errorf("failed to load position %d: %w", id, err)
	}
	g, err := geom.UnmarshalWKB(wkb)
	if err != nil {
		return geom.Point{}, fmt.Errorf("failed to decode position %d: %w", id, err)
	}
	if !g.IsPoint() {
		return geom.Point{}, fmt.Errorf("position %d is a %s", id, g.Type())
	}
	return g.MustAsPoint(), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
