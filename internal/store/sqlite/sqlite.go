package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// driverName is go-sqlite3 with the helper functions the queries rely on.
const driverName = "sqlite3_cartchat"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("contains_fold", store.ContainsFold, true)
		},
	})
}

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`
	CREATE TABLE users (
		id           TEXT PRIMARY KEY,
		username     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar       TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	);

	CREATE TABLE products (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		brand    TEXT NOT NULL DEFAULT '',
		price    REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		images   TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE carts (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		items      TEXT NOT NULL DEFAULT '[]',
		currency   TEXT NOT NULL DEFAULT 'USD',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX idx_carts_user_active ON carts(user_id, active, created_at DESC);
	`,
	`
	CREATE TABLE messages (
		id               TEXT PRIMARY KEY,
		conversation_id  TEXT NOT NULL,
		sender           TEXT NOT NULL,
		recipient        TEXT NOT NULL,
		content          TEXT NOT NULL,
		message_type     TEXT NOT NULL,
		media            TEXT,
		shared_content   TEXT,
		reply_to         TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL CHECK (status IN ('sent', 'delivered', 'read')),
		delivered_at     INTEGER,
		read_at          INTEGER,
		is_edited        INTEGER NOT NULL DEFAULT 0,
		edited_at        INTEGER,
		original_content TEXT NOT NULL DEFAULT '',
		is_deleted       INTEGER NOT NULL DEFAULT 0,
		deleted_at       INTEGER,
		deleted_by       TEXT NOT NULL DEFAULT '',
		is_reported      INTEGER NOT NULL DEFAULT 0,
		report_count     INTEGER NOT NULL DEFAULT 0,
		is_hidden        INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		CHECK (sender <> recipient)
	);
	CREATE INDEX idx_messages_conversation ON messages(conversation_id, created_at DESC, id DESC);
	CREATE INDEX idx_messages_recipient_status ON messages(recipient, status);
	CREATE INDEX idx_messages_sender ON messages(sender, created_at DESC);

	CREATE TABLE message_reactions (
		message_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		emoji      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (message_id, user_id),
		FOREIGN KEY (message_id) REFERENCES messages(id)
	);
	`,
	`ALTER TABLE users ADD COLUMN is_verified INTEGER NOT NULL DEFAULT 0;`,
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens (or creates) the database at dbPath and brings the schema up to date.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup opens the database, runs migrations and then setup. Tests use setup
// to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

func (s *SQLiteStore) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as unix nanoseconds so ordering and cursors are exact.

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
