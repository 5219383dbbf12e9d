package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/spellflare/spellsync/internal/migrate"
	"github.com/spellflare/spellsync/internal/profile"
)

const (
	stateHasPending = "has_pending"
	stateDeviceID   = "device_id"
)

// SQLite stores the profile slot in an embedded SQLite database.
type SQLite struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

var _ Store = (*SQLite)(nil)

// Open opens (creating if necessary) the cache database at path and
// initialises its schema.
//
// The caller MUST call Close() when done.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	// One writer; the endpoint serializes access anyway.
	conn.SetMaxOpenConns(1)

	s := &SQLite{conn: conn, path: path, logger: logger}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.conn.Exec(p); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("WARNING: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	s.conn = nil
	return nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	-- Single profile slot per device
	CREATE TABLE IF NOT EXISTS profile_slot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,           -- Syncable JSON, current schema
		last_modified TEXT NOT NULL,
		device_identifier TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		saved_at TEXT NOT NULL
	);

	-- Small key/value table for sync bookkeeping
	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Load implements Cache.Load. Older payloads are upgraded through package
// migrate; when that changes the record (schema bump or the one-time coin
// grant) the upgraded value is written back immediately.
func (s *SQLite) Load(ctx context.Context) (profile.Syncable, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx, `SELECT payload FROM profile_slot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Syncable{}, ErrNotFound
	}
	if err != nil {
		return profile.Syncable{}, fmt.Errorf("failed to load profile: %w", err)
	}

	syncable, report, err := migrate.DecodeSyncable([]byte(payload))
	if err != nil {
		s.logger.Printf("WARNING: discarding unreadable cached profile: %v", err)
		return profile.Syncable{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if report.Upgraded() {
		if report.Granted {
			s.logger.Printf("Granted %d retroactive coins to %s", report.CoinsGranted, syncable.Profile.Name)
		}
		if err := s.Save(ctx, syncable); err != nil {
			return profile.Syncable{}, fmt.Errorf("failed to persist migrated profile: %w", err)
		}
	}

	return syncable, nil
}

// Save implements Cache.Save.
func (s *SQLite) Save(ctx context.Context, syncable profile.Syncable) error {
	data, err := syncable.Encode()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO profile_slot (id, payload, last_modified, device_identifier, schema_version, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			last_modified = excluded.last_modified,
			device_identifier = excluded.device_identifier,
			schema_version = excluded.schema_version,
			saved_at = excluded.saved_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		string(data),
		syncable.LastModified.UTC().Format(time.RFC3339Nano),
		syncable.DeviceIdentifier,
		syncable.SchemaVersion,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Clear implements Cache.Clear. The device identifier is kept.
func (s *SQLite) Clear(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_slot`); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_state WHERE key = ?`, stateHasPending); err != nil {
		return fmt.Errorf("failed to clear pending flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// Pending implements PendingStore.Pending.
func (s *SQLite) Pending(ctx context.Context) (bool, error) {
	value, ok, err := s.state(ctx, stateHasPending)
	if err != nil || !ok {
		return false, err
	}
	pending, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid pending flag %q: %w", value, err)
	}
	return pending, nil
}

// SetPending implements PendingStore.SetPending.
func (s *SQLite) SetPending(ctx context.Context, pending bool) error {
	return s.setState(ctx, stateHasPending, strconv.FormatBool(pending))
}

// DeviceID implements DeviceStore.DeviceID.
func (s *SQLite) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.state(ctx, stateDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	id = uuid.New().String()
	if err := s.setState(ctx, stateDeviceID, id); err != nil {
		return "", err
	}
	s.logger.Printf("Generated device identifier %s", id)
	return id, nil
}

func (s *SQLite) state(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) setState(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
