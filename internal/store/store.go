package store

import (
	"context"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// Snapshot is a durable mirror of one folder's cache, together with the
// time it was written. A snapshot older than the caller's freshness
// window, or written by a different user, is treated as a miss.
type Snapshot struct {
	Messages []model.Message
	SavedAt  time.Time
}

// Store defines the durable local mirror used for cold-start hydration
// and the offline action queue. Persistence is an optimization, not a
// correctness requirement: callers absorb write failures.
type Store interface {
	// SaveFolder persists the folder's messages under the emails_{folder}
	// key, stamped with the writing user and the current time.
	SaveFolder(ctx context.Context, userID string, folder model.Folder, messages []model.Message) error

	// LoadFolder returns the folder's snapshot, or nil when the record is
	// absent, belongs to a different user, or is older than maxAge.
	LoadFolder(ctx context.Context, userID string, folder model.Folder, maxAge time.Duration) (*Snapshot, error)

	// ReplaceActions rewrites the user's pending action queue in order.
	ReplaceActions(ctx context.Context, userID string, actions []model.PendingAction) error

	// GetActions returns the user's pending actions in FIFO order.
	GetActions(ctx context.Context, userID string) ([]model.PendingAction, error)

	Close() error
}

// SnapshotKey returns the storage key for a folder's snapshot.
func SnapshotKey(folder model.Folder) string {
	return "emails_" + string(folder)
}
