package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailsync/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB

	// now is swapped in tests to control snapshot aging.
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveFolder persists a folder's messages under the emails_{folder} key.
// The previous record is replaced regardless of which user wrote it; the
// store mirrors a single active session.
func (s *SQLiteStore) SaveFolder(
	ctx context.Context,
	userID string,
	folder model.Folder,
	messages []model.Message,
) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling %s snapshot: %w", folder, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO folder_snapshots (key, user_id, data, saved_at)
		VALUES (?, ?, ?, ?)`,
		SnapshotKey(folder), userID, string(data), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving %s snapshot: %w", folder, err)
	}

	return nil
}

// LoadFolder returns the folder's snapshot, or nil on a miss. A record
// belonging to a different user or older than maxAge is a miss, not an
// error: stale offline data is worse than no offline data.
func (s *SQLiteStore) LoadFolder(
	ctx context.Context,
	userID string,
	folder model.Folder,
	maxAge time.Duration,
) (*Snapshot, error) {
	var (
		owner   string
		data    string
		savedAt time.Time
	)

	row := s.db.QueryRowxContext(ctx,
		"SELECT user_id, data, saved_at FROM folder_snapshots WHERE key = ?",
		SnapshotKey(folder),
	)
	if err := row.Scan(&owner, &data, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading %s snapshot: %w", folder, err)
	}

	if owner != userID {
		return nil, nil
	}
	if maxAge > 0 && s.now().Sub(savedAt) > maxAge {
		return nil, nil
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling %s snapshot: %w", folder, err)
	}

	return &Snapshot{Messages: messages, SavedAt: savedAt}, nil
}

// ReplaceActions rewrites the user's pending action queue. The whole list
// is replaced in one transaction so a crash never leaves a half-written
// queue behind.
func (s *SQLiteStore) ReplaceActions(
	ctx context.Context,
	userID string,
	actions []model.PendingAction,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_actions WHERE user_id = ?", userID,
	); err != nil {
		return fmt.Errorf("clearing pending actions: %w", err)
	}

	const query = `
		INSERT INTO pending_actions (id, user_id, type, payload, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing action insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range actions {
		_, err = stmt.ExecContext(ctx,
			a.ID, userID, string(a.Type), string(a.Payload),
			a.CreatedAt.UTC(), i,
		)
		if err != nil {
			return fmt.Errorf("inserting action %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// GetActions returns the user's pending actions in FIFO order.
func (s *SQLiteStore) GetActions(
	ctx context.Context,
	userID string,
) ([]model.PendingAction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, type, payload, created_at
		FROM pending_actions WHERE user_id = ? ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending actions: %w", err)
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var (
			a       model.PendingAction
			typ     string
			payload string
		)
		if err := rows.Scan(&a.ID, &typ, &payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning action row: %w", err)
		}
		a.Type = model.ActionType(typ)
		a.Payload = json.RawMessage(payload)
		actions = append(actions, a)
	}

	return actions, rows.Err()
}
