package sync

import "errors"

var (
	// ErrNoFetchBaseline is returned by an incremental fetch when the
	// folder has never completed a full fetch.
	ErrNoFetchBaseline = errors.New("no fetch baseline")

	// ErrNoOfflineData is returned when an offline fetch finds no usable
	// local snapshot for the folder.
	ErrNoOfflineData = errors.New("no offline data")

	// ErrNotCached is returned by mutations targeting a message id that
	// no folder cache holds.
	ErrNotCached = errors.New("message not cached")
)
