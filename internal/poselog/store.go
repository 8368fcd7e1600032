package poselog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/mapalign/internal/localizer"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS localizer_sessions (
	session_id TEXT PRIMARY KEY,
	started_unix_nanos INTEGER NOT NULL,
	map_frame TEXT NOT NULL,
	sensor_frame TEXT NOT NULL,
	notes TEXT
);

CREATE TABLE IF NOT EXISTS localizer_poses (
	session_id TEXT NOT NULL REFERENCES localizer_sessions(session_id) ON DELETE CASCADE,
	frame_id INTEGER NOT NULL,
	ts_unix_nanos INTEGER NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	z REAL NOT NULL,
	yaw REAL NOT NULL,
	pitch REAL NOT NULL,
	roll REAL NOT NULL,
	PRIMARY KEY (session_id, frame_id)
);

CREATE INDEX IF NOT EXISTS idx_localizer_poses_ts ON localizer_poses(session_id, ts_unix_nanos);
`

// Store persists localization sessions and their pose rows in SQLite.
type Store struct {
	db        *sql.DB
	sessionID string
}

// OpenStore opens (creating if needed) the database at path, ensures the
// schema, and starts a new session.
func OpenStore(path, mapFrame, sensorFrame, notes string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize pose store schema: %v", err)
	}

	sessionID := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO localizer_sessions (session_id, started_unix_nanos, map_frame, sensor_frame, notes) VALUES (?, ?, ?, ?, ?)`,
		sessionID, time.Now().UnixNano(), mapFrame, sensorFrame, notes,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %v", err)
	}
	return &Store{db: db, sessionID: sessionID}, nil
}

// SessionID returns the UUID of the current session.
func (s *Store) SessionID() string { return s.sessionID }

// Append inserts one pose row for the current session.
func (s *Store) Append(rec localizer.PoseRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO localizer_poses (session_id, frame_id, ts_unix_nanos, x, y, z, yaw, pitch, roll)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, rec.FrameIndex, time.Now().UnixNano(),
		rec.X, rec.Y, rec.Z, rec.Yaw, rec.Pitch, rec.Roll,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pose %d: %v", rec.FrameIndex, err)
	}
	return nil
}

// Poses returns the session's pose rows ordered by frame id.
func (s *Store) Poses() ([]localizer.PoseRecord, error) {
	rows, err := s.db.Query(
		`SELECT frame_id, x, y, z, yaw, pitch, roll FROM localizer_poses
		 WHERE session_id = ? ORDER BY frame_id`, s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []localizer.PoseRecord
	for rows.Next() {
		var r localizer.PoseRecord
		if err := rows.Scan(&r.FrameIndex, &r.X, &r.Y, &r.Z, &r.Yaw, &r.Pitch, &r.Roll); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
