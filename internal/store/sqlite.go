package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/meeting-rag/internal/model"
)

// SQLStore implements Store on database/sql. The same queries run on SQLite
// and Postgres; placeholders are rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	path    string

	mu      sync.Mutex
	entropy io.Reader
}

type dialect struct {
	name     string
	numbered bool // $1, $2 ... placeholders
	schema   string
}

var sqliteDialect = dialect{name: "sqlite", schema: `
	CREATE TABLE IF NOT EXISTS meeting_dialogues (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id    TEXT NOT NULL,
		meeting_date  TEXT NOT NULL,
		speaker_label TEXT NOT NULL,
		start_time    REAL NOT NULL,
		segment       TEXT NOT NULL,
		confidence    REAL NOT NULL DEFAULT 0,
		audio_file    TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		owner_id      INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_dialogues_meeting ON meeting_dialogues(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_dialogues_owner ON meeting_dialogues(owner_id);

	CREATE TABLE IF NOT EXISTS meeting_minutes (
		meeting_id   TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		meeting_date TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL,
		owner_id     INTEGER,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meeting_mindmap (
		meeting_id TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		google_id  TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'user',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meeting_shares (
		meeting_id          TEXT NOT NULL,
		owner_id            INTEGER NOT NULL,
		shared_with_user_id INTEGER NOT NULL,
		permission          TEXT NOT NULL DEFAULT 'read',
		created_at          TEXT NOT NULL,
		PRIMARY KEY (meeting_id, shared_with_user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_shares_user ON meeting_shares(shared_with_user_id);

	CREATE TABLE IF NOT EXISTS meeting_intents (
		id         TEXT PRIMARY KEY,
		op         TEXT NOT NULL,
		meeting_id TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_intents_status ON meeting_intents(status);
	`}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return open(db, sqliteDialect, dbPath)
}

func open(db *sql.DB, d dialect, path string) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: d,
		path:    path,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// newID returns a ULID; ids from one store sort in creation order.
func (s *SQLStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *SQLStore) rebind(q string) string {
	if !s.dialect.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
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

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQLStore) count(ctx context.Context, q execer, query string, args ...any) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n)
	return n, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func (s *SQLStore) SaveTranscript(ctx context.Context, p SaveTranscriptParams) (*model.Meeting, error) {
	if len(p.Segments) == 0 {
		return nil, fmt.Errorf("save transcript: no segments")
	}
	id := p.MeetingID
	if id == "" {
		id = uuid.NewString()
	}
	date := p.MeetingDate
	if date == "" {
		date = model.FormatDate(time.Now())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.count(ctx, tx, `SELECT COUNT(*) FROM meeting_dialogues WHERE meeting_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("check meeting: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s (delete it first)", ErrMeetingExists, id)
	}

	insert := s.rebind(`INSERT INTO meeting_dialogues
		(meeting_id, meeting_date, speaker_label, start_time, segment, confidence, audio_file, title, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, seg := range p.Segments {
		if _, err := tx.ExecContext(ctx, insert,
			id, date, seg.SpeakerLabel, seg.StartTime, seg.Text, seg.Confidence,
			p.AudioFile, p.Title, nullInt(p.OwnerID)); err != nil {
			return nil, fmt.Errorf("insert segment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Meeting{
		ID:           id,
		Title:        p.Title,
		MeetingDate:  date,
		AudioFile:    p.AudioFile,
		OwnerID:      p.OwnerID,
		SegmentCount: len(p.Segments),
	}, nil
}

// Meeting columns aggregate per meeting so the query is valid on Postgres too.
const meetingColumns = `meeting_id, MAX(title), MAX(meeting_date), MAX(audio_file), MAX(owner_id), COUNT(*)`

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(sc scanner) (model.Meeting, error) {
	var m model.Meeting
	var owner sql.NullInt64
	err := sc.Scan(&m.ID, &m.Title, &m.MeetingDate, &m.AudioFile, &owner, &m.SegmentCount)
	m.OwnerID = intPtr(owner)
	return m, err
}

func (s *SQLStore) Meeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	m, err := scanMeeting(s.queryRow(ctx,
		`SELECT `+meetingColumns+` FROM meeting_dialogues WHERE meeting_id = ? GROUP BY meeting_id`, meetingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) Segments(ctx context.Context, meetingID string) ([]model.Segment, error) {
	rows, err := s.query(ctx, `SELECT speaker_label, start_time, segment, confidence
		FROM meeting_dialogues WHERE meeting_id = ? ORDER BY start_time, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segs []model.Segment
	for rows.Next() {
		seg := model.Segment{Index: len(segs)}
		if err := rows.Scan(&seg.SpeakerLabel, &seg.StartTime, &seg.Text, &seg.Confidence); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

func (s *SQLStore) SaveMinutes(ctx context.Context, m model.Minutes) error {
	now := nowString()
	_, err := s.exec(ctx, `INSERT INTO meeting_minutes
		(meeting_id, title, meeting_date, content, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (meeting_id) DO UPDATE SET
			title = excluded.title,
			meeting_date = excluded.meeting_date,
			content = excluded.content,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at`,
		m.MeetingID, m.Title, m.MeetingDate, m.Content, nullInt(m.OwnerID), now, now)
	if err != nil {
		return fmt.Errorf("save minutes: %w", err)
	}
	return nil
}

func (s *SQLStore) Minutes(ctx context.Context, meetingID string) (*model.Minutes, error) {
	var m model.Minutes
	var owner sql.NullInt64
	var created, updated string
	err := s.queryRow(ctx, `SELECT meeting_id, title, meeting_date, content, owner_id, created_at, updated_at
		FROM meeting_minutes WHERE meeting_id = ?`, meetingID).
		Scan(&m.MeetingID, &m.Title, &m.MeetingDate, &m.Content, &owner, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("minutes %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.OwnerID = intPtr(owner)
	m.CreatedAt = parseTime(created)
	m.UpdatedAt = parseTime(updated)
	return &m, nil
}

func (s *SQLStore) SaveMindmap(ctx context.Context, m model.Mindmap) error {
	_, err := s.exec(ctx, `INSERT INTO meeting_mindmap (meeting_id, content, created_at) VALUES (?, ?, ?)
		ON CONFLICT (meeting_id) DO UPDATE SET content = excluded.content, created_at = excluded.created_at`,
		m.MeetingID, m.Content, nowString())
	if err != nil {
		return fmt.Errorf("save mindmap: %w", err)
	}
	return nil
}

func (s *SQLStore) Mindmap(ctx context.Context, meetingID string) (*model.Mindmap, error) {
	var m model.Mindmap
	var created string
	err := s.queryRow(ctx, `SELECT meeting_id, content, created_at FROM meeting_mindmap WHERE meeting_id = ?`, meetingID).
		Scan(&m.MeetingID, &m.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mindmap %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(created)
	return &m, nil
}

func (s *SQLStore) UpdateTitle(ctx context.Context, meetingID, title string) (UpdateCounts, error) {
	return s.updateMeeting(ctx, meetingID, "title", title)
}

func (s *SQLStore) UpdateDate(ctx context.Context, meetingID, date string) (UpdateCounts, error) {
	return s.updateMeeting(ctx, meetingID, "meeting_date", date)
}

// updateMeeting sets column on the dialogue and minutes rows of a meeting in one transaction.
// column is always a literal from this file.
func (s *SQLStore) updateMeeting(ctx context.Context, meetingID, column, value string) (UpdateCounts, error) {
	var c UpdateCounts
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE meeting_dialogues SET `+column+` = ? WHERE meeting_id = ?`), value, meetingID)
	if err != nil {
		return c, fmt.Errorf("update dialogues %s: %w", column, err)
	}
	n, _ := res.RowsAffected()
	c.Dialogues = int(n)

	res, err = tx.ExecContext(ctx, s.rebind(`UPDATE meeting_minutes SET `+column+` = ?, updated_at = ? WHERE meeting_id = ?`),
		value, nowString(), meetingID)
	if err != nil {
		return c, fmt.Errorf("update minutes %s: %w", column, err)
	}
	n, _ = res.RowsAffected()
	c.Minutes = int(n)

	return c, tx.Commit()
}

func (s *SQLStore) DeleteMeeting(ctx context.Context, meetingID string) (*DeleteCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := &DeleteCounts{}
	tables := []struct {
		name   string
		counts *TableCounts
	}{
		{"meeting_dialogues", &out.Dialogues},
		{"meeting_minutes", &out.Minutes},
		{"meeting_shares", &out.Shares},
		{"meeting_mindmap", &out.Mindmap},
	}
	for _, t := range tables {
		where := ` FROM ` + t.name + ` WHERE meeting_id = ?`
		if t.counts.Before, err = s.count(ctx, tx, `SELECT COUNT(*)`+where, meetingID); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.name, err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE`+where), meetingID)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", t.name, err)
		}
		n, _ := res.RowsAffected()
		t.counts.Deleted = int(n)
		if t.counts.After, err = s.count(ctx, tx, `SELECT COUNT(*)`+where, meetingID); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}
