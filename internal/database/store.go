// Package database provides the local journal of regionplay.
//
// It records what happened during a session (region changes, playback
// frame outcomes) and keeps manage_region calls that failed so they can
// be resent by hand. The DBService struct implements Store on SQLite in
// WAL mode.
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store defines the interface for journal persistence.
type Store interface {
	// StartSession records a new client session.
	StartSession(sess *Session) error
	// EndSession stamps the end time of a session.
	EndSession(sessionID string, at int64) error
	// QuerySessions returns sessions ordered by started_at DESC.
	QuerySessions(filter SessionFilter) ([]*Session, error)

	// InsertRegionEvent persists one registry change.
	InsertRegionEvent(ev *RegionEvent) error
	// BatchInsertRegionEvents inserts multiple events in a single transaction.
	BatchInsertRegionEvents(events []*RegionEvent) error
	// QueryRegionEvents returns the events of a session in time order.
	QueryRegionEvents(sessionID string) ([]*RegionEvent, error)

	// InsertFrame persists one playback frame outcome.
	InsertFrame(f *FrameRecord) error
	// BatchInsertFrames inserts multiple frame outcomes in a single transaction.
	BatchInsertFrames(frames []*FrameRecord) error
	// QueryFrames returns the frame outcomes of a session, optionally for
	// one 3D region, in time order.
	QueryFrames(sessionID string, regionID *string) ([]*FrameRecord, error)

	// GetSessionStats returns aggregated statistics for a session.
	GetSessionStats(sessionID string) (*SessionStats, error)

	// WritePendingManage stores a failed manage_region request body.
	WritePendingManage(sessionID string, payload []byte) (int64, error)
	// CommitPendingManage marks a pending request as delivered.
	CommitPendingManage(writeID int64) error
	// BumpPendingManage counts another failed delivery attempt.
	BumpPendingManage(writeID int64) error
	// GetPendingManage returns all undelivered requests, oldest first.
	GetPendingManage() ([]PendingWrite, error)

	// Close gracefully shuts down the database connection.
	Close() error
}

// Session is one run of the client against a compute service.
type Session struct {
	SessionID string `json:"session_id"`
	ServerURL string `json:"server_url"`
	StartedAt int64  `json:"started_at"`
	EndedAt   *int64 `json:"ended_at,omitempty"`
}

// RegionEvent is one registry change.
type RegionEvent struct {
	EventID     int64  `json:"event_id"`
	SessionID   string `json:"session_id"`
	RegionID    string `json:"region_id"`
	Kind        string `json:"kind"`
	Computation string `json:"computation"`
	Is3D        bool   `json:"is_3d"`
	Vertices    int    `json:"vertices"`
	Timestamp   int64  `json:"timestamp"`
}

// Frame results as stored.
const (
	FrameApplied = "applied"
	FrameStale   = "stale"
	FrameFailed  = "failed"
)

// FrameRecord is the outcome of one frame request.
type FrameRecord struct {
	SessionID    string  `json:"session_id"`
	RegionID     string  `json:"region_id"`
	Seq          uint64  `json:"seq"`
	TimeIndex    int     `json:"time_index"`
	Single       bool    `json:"single"`
	Result       string  `json:"result"`
	FrameID      *string `json:"frame_id,omitempty"`
	LatencyMs    int64   `json:"latency_ms"`
	ErrorMessage *string `json:"error_message,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// SessionFilter defines query parameters for session listing.
type SessionFilter struct {
	Since  *int64 `json:"since,omitempty"` // Unix nanoseconds
	Until  *int64 `json:"until,omitempty"` // Unix nanoseconds
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// SessionStats holds aggregated statistics for a session.
type SessionStats struct {
	SessionID      string  `json:"session_id"`
	RegionEvents   int     `json:"region_events"`
	RegionsAdded   int     `json:"regions_added"`
	RegionsRemoved int     `json:"regions_removed"`
	Envelopes      int     `json:"envelopes"`
	FramesApplied  int     `json:"frames_applied"`
	FramesStale    int     `json:"frames_stale"`
	FramesFailed   int     `json:"frames_failed"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	MaxLatencyMs   int64   `json:"max_latency_ms"`
	PendingManage  int     `json:"pending_manage"`
}

// PendingWrite is a manage_region request waiting for resend.
type PendingWrite struct {
	WriteID   int64  `json:"write_id"`
	SessionID string `json:"session_id"`
	Payload   []byte `json:"payload"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"created_at"`
}

// DBService implements the Store interface using SQLite.
// A read-write mutex serialises writers; the pool holds one connection.
type DBService struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	stmtInsertEvent   *sql.Stmt
	stmtInsertFrame   *sql.Stmt
	stmtInsertPending *sql.Stmt
	stmtCommitPending *sql.Stmt
	stmtBumpPending   *sql.Stmt
}

// NewDBService opens the journal at path, creating the schema if needed.
// Use ":memory:" for an in-memory database (tests).
func NewDBService(path string) (*DBService, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// SQLite only supports one writer at a time; an in-memory database
	// also lives and dies with its single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	svc := &DBService{
		db:   db,
		path: path,
	}

	if err := svc.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if err := svc.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statements: %w", err)
	}

	return svc, nil
}

// Path returns the database location.
func (s *DBService) Path() string { return s.path }

func (s *DBService) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

func (s *DBService) prepareStatements() error {
	var err error

	s.stmtInsertEvent, err = s.db.Prepare(`
		INSERT INTO region_events (session_id, region_id, kind, computation, is_3d, vertices, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertRegionEvent: %w", err)
	}

	s.stmtInsertFrame, err = s.db.Prepare(`
		INSERT INTO frames (session_id, region_id, seq, time_index, single, result,
			frame_id, latency_ms, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertFrame: %w", err)
	}

	s.stmtInsertPending, err = s.db.Prepare(`
		INSERT INTO pending_manage (session_id, payload, status, created_at) VALUES (?, ?, 'pending', ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertPending: %w", err)
	}

	s.stmtCommitPending, err = s.db.Prepare(`
		UPDATE pending_manage SET status = 'committed', committed_at = ? WHERE write_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing CommitPending: %w", err)
	}

	s.stmtBumpPending, err = s.db.Prepare(`
		UPDATE pending_manage SET attempts = attempts + 1 WHERE write_id = ? AND status = 'pending'
	`)
	if err != nil {
		return fmt.Errorf("preparing BumpPending: %w", err)
	}

	return nil
}

// StartSession records a new session. Starting an existing session again
// is a no-op.
func (s *DBService) StartSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, server_url, started_at, ended_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, sess.SessionID, sess.ServerURL, sess.StartedAt, sess.EndedAt)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.SessionID, err)
	}
	return nil
}

// EndSession stamps the end of a session.
func (s *DBService) EndSession(sessionID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at, sessionID); err != nil {
		return fmt.Errorf("ending session %s: %w", sessionID, err)
	}
	return nil
}

// QuerySessions returns sessions matching the filter, most recent first.
func (s *DBService) QuerySessions(filter SessionFilter) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT session_id, server_url, started_at, ended_at FROM sessions WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += ` AND started_at <= ?`
		args = append(args, *filter.Until)
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else {
		query += ` LIMIT 100`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.SessionID, &sess.ServerURL, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// InsertRegionEvent persists one registry change.
func (s *DBService) InsertRegionEvent(ev *RegionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.stmtInsertEvent.Exec(
		ev.SessionID, ev.RegionID, ev.Kind, ev.Computation, ev.Is3D, ev.Vertices, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting region event for %s: %w", ev.RegionID, err)
	}
	ev.EventID, _ = res.LastInsertId()
	return nil
}

// BatchInsertRegionEvents inserts events within a single transaction.
func (s *DBService) BatchInsertRegionEvents(events []*RegionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning region event transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.Stmt(s.stmtInsertEvent)
	for _, ev := range events {
		res, err := stmt.Exec(
			ev.SessionID, ev.RegionID, ev.Kind, ev.Computation, ev.Is3D, ev.Vertices, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("batch inserting region event for %s: %w", ev.RegionID, err)
		}
		ev.EventID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing region event transaction: %w", err)
	}
	return nil
}

// QueryRegionEvents returns all events of a session in time order.
func (s *DBService) QueryRegionEvents(sessionID string) ([]*RegionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, session_id, region_id, kind, computation, is_3d, vertices, timestamp
		FROM region_events
		WHERE session_id = ?
		ORDER BY timestamp ASC, event_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying region events for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var events []*RegionEvent
	for rows.Next() {
		ev := &RegionEvent{}
		if err := rows.Scan(
			&ev.EventID, &ev.SessionID, &ev.RegionID, &ev.Kind,
			&ev.Computation, &ev.Is3D, &ev.Vertices, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning region event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// InsertFrame persists one frame outcome.
func (s *DBService) InsertFrame(f *FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stmtInsertFrame.Exec(frameArgs(f)...); err != nil {
		return fmt.Errorf("inserting frame %d of %s: %w", f.Seq, f.RegionID, err)
	}
	return nil
}

// BatchInsertFrames inserts frame outcomes within a single transaction.
func (s *DBService) BatchInsertFrames(frames []*FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning frame transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.Stmt(s.stmtInsertFrame)
	for _, f := range frames {
		if _, err := stmt.Exec(frameArgs(f)...); err != nil {
			return fmt.Errorf("batch inserting frame %d of %s: %w", f.Seq, f.RegionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing frame transaction: %w", err)
	}
	return nil
}

func frameArgs(f *FrameRecord) []interface{} {
	return []interface{}{
		f.SessionID, f.RegionID, int64(f.Seq), f.TimeIndex, f.Single, f.Result,
		f.FrameID, f.LatencyMs, f.ErrorMessage, f.Timestamp,
	}
}

// QueryFrames returns frame outcomes of a session in time order. A non-nil
// regionID restricts the result to one 3D region.
func (s *DBService) QueryFrames(sessionID string, regionID *string) ([]*FrameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT session_id, region_id, seq, time_index, single, result,
			frame_id, latency_ms, error_message, timestamp
		FROM frames
		WHERE session_id = ?`
	args := []interface{}{sessionID}
	if regionID != nil {
		query += ` AND region_id = ?`
		args = append(args, *regionID)
	}
	query += ` ORDER BY timestamp ASC, frame_row ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying frames for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var frames []*FrameRecord
	for rows.Next() {
		f := &FrameRecord{}
		var seq int64
		if err := rows.Scan(
			&f.SessionID, &f.RegionID, &seq, &f.TimeIndex, &f.Single, &f.Result,
			&f.FrameID, &f.LatencyMs, &f.ErrorMessage, &f.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning frame row: %w", err)
		}
		f.Seq = uint64(seq)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// GetSessionStats returns aggregated statistics for a session.
func (s *DBService) GetSessionStats(sessionID string) (*SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SessionStats{SessionID: sessionID}

	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN kind = 'added' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'removed' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN is_3d = 1 THEN region_id END)
		FROM region_events
		WHERE session_id = ?
	`, sessionID).Scan(&stats.RegionEvents, &stats.RegionsAdded, &stats.RegionsRemoved, &stats.Envelopes)
	if err != nil {
		return nil, fmt.Errorf("querying region stats for %s: %w", sessionID, err)
	}

	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN result = 'applied' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'stale' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(MAX(latency_ms), 0)
		FROM frames
		WHERE session_id = ?
	`, sessionID).Scan(&stats.FramesApplied, &stats.FramesStale, &stats.FramesFailed, &stats.AvgLatencyMs, &stats.MaxLatencyMs)
	if err != nil {
		return nil, fmt.Errorf("querying frame stats for %s: %w", sessionID, err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM pending_manage WHERE session_id = ? AND status = 'pending'
	`, sessionID).Scan(&stats.PendingManage)
	if err != nil {
		return nil, fmt.Errorf("counting pending manage calls for %s: %w", sessionID, err)
	}

	return stats, nil
}

// WritePendingManage stores a failed manage_region request body and
// returns its write ID.
func (s *DBService) WritePendingManage(sessionID string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.stmtInsertPending.Exec(sessionID, payload, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("writing pending manage call: %w", err)
	}
	return result.LastInsertId()
}

// CommitPendingManage marks a pending request as delivered.
func (s *DBService) CommitPendingManage(writeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stmtCommitPending.Exec(time.Now().UnixNano(), writeID); err != nil {
		return fmt.Errorf("committing pending manage call %d: %w", writeID, err)
	}
	return nil
}

// BumpPendingManage counts one more failed attempt.
func (s *DBService) BumpPendingManage(writeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stmtBumpPending.Exec(writeID); err != nil {
		return fmt.Errorf("bumping pending manage call %d: %w", writeID, err)
	}
	return nil
}

// GetPendingManage returns all undelivered requests, oldest first.
func (s *DBService) GetPendingManage() ([]PendingWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT write_id, session_id, payload, status, attempts, created_at
		FROM pending_manage
		WHERE status = 'pending'
		ORDER BY write_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending manage calls: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		if err := rows.Scan(&w.WriteID, &w.SessionID, &w.Payload, &w.Status, &w.Attempts, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending manage call: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// Close closes the prepared statements and the connection pool.
func (s *DBService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []*sql.Stmt{
		s.stmtInsertEvent, s.stmtInsertFrame, s.stmtInsertPending,
		s.stmtCommitPending, s.stmtBumpPending,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}
