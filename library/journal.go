package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

// Event kinds written to the journal.
const (
	EventLibraryCreated = "library_created"
	EventCopyAdded      = "copy_added"
	EventCopyRemoved    = "copy_removed"
	EventCopyBorrowed   = "copy_borrowed"
	EventCopyReturned   = "copy_returned"
	EventLimitChanged   = "limit_changed"
)

// Event is one state change of the library.
type Event struct {
	Session string         `json:"session"`
	Kind    string         `json:"kind"`
	CopyID  ID             `json:"copy_id,omitempty"`
	BookID  ID             `json:"book_id,omitempty"`
	UserID  ID             `json:"user_id,omitempty"`
	Rack    int            `json:"rack,omitempty"`
	DueDate string         `json:"due_date,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}

// Journal receives every state change. It is an audit trail only; library
// state is never rebuilt from it.
type Journal interface {
	Record(e Event) error
}

type nopJournal struct{}

func (nopJournal) Record(Event) error { return nil }

// SQLiteJournal appends events to a SQLite database. Each opened journal is
// a new session with its own UUID.
type SQLiteJournal struct {
	db      *sql.DB
	session string

	insertStmt *sql.Stmt
}

// OpenJournal opens (or creates) the SQLite journal at path, applies schema
// migrations, and starts a new session.
func OpenJournal(path string) (*SQLiteJournal, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	j := &SQLiteJournal{db: db, session: uuid.NewString()}
	if _, err := db.Exec(`INSERT INTO sessions(id, started_at) VALUES(?, ?)`, j.session, time.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	if j.insertStmt, err = db.Prepare(`INSERT INTO events(session_id,kind,copy_id,book_id,user_id,rack,due_date,detail,recorded_at)
        VALUES(?,?,?,?,?,?,?,?,?)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return j, nil
}

// Session returns the UUID of the current session.
func (j *SQLiteJournal) Session() string { return j.session }

// Close releases the prepared statement and closes the DB.
func (j *SQLiteJournal) Close() error {
	if j.insertStmt != nil {
		j.insertStmt.Close()
	}
	return j.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            started_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id TEXT NOT NULL REFERENCES sessions(id),
            kind TEXT NOT NULL,
            copy_id TEXT,
            book_id TEXT,
            user_id TEXT,
            rack INTEGER,
            due_date TEXT,
            detail TEXT,
            recorded_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_events_copy ON events(copy_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Record appends e to the current session.
func (j *SQLiteJournal) Record(e Event) error {
	var detail any
	if len(e.Detail) > 0 {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		detail = string(b)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.insertStmt.Exec(j.session, e.Kind,
		nullString(string(e.CopyID)), nullString(string(e.BookID)), nullString(string(e.UserID)),
		e.Rack, nullString(e.DueDate), detail, at.UTC())
	return err
}

// History returns every recorded event touching copyID, oldest first,
// across all sessions.
func (j *SQLiteJournal) History(copyID ID) ([]Event, error) {
	rows, err := j.db.Query(`
        SELECT session_id, kind, COALESCE(copy_id,''), COALESCE(book_id,''), COALESCE(user_id,''),
               COALESCE(rack,0), COALESCE(due_date,''), COALESCE(detail,''), recorded_at
        FROM events WHERE copy_id=? ORDER BY id`, string(copyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                   Event
			copyCol, book, user string
			detail              string
		)
		if err := rows.Scan(&e.Session, &e.Kind, &copyCol, &book, &user, &e.Rack, &e.DueDate, &detail, &e.At); err != nil {
			return nil, err
		}
		e.CopyID, e.BookID, e.UserID = ID(copyCol), ID(book), ID(user)
		if detail != "" {
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("decode detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Sessions returns the number of sessions recorded in the journal.
func (j *SQLiteJournal) Sessions() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
