package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
)

// fetchFull populates the folder cache from the remote store, or from
// the local snapshot when offline. manual marks a user-initiated refresh
// whose failure must be surfaced; background marks an automatic sync
// that stays silent. Only one fetch per folder may be in flight: an
// overlapping request collapses to a no-op.
func (e *Engine) fetchFull(
	ctx context.Context,
	folder model.Folder,
	manual, background bool,
) error {
	e.mu.Lock()
	entry := e.cache.Get(folder)
	if entry.LoadState.Fetching() {
		e.mu.Unlock()
		return nil
	}
	online := e.online
	if background {
		entry.LoadState = cache.BackgroundSyncing
	} else {
		entry.LoadState = cache.Loading
	}
	e.mu.Unlock()

	if !online {
		return e.loadOffline(ctx, folder)
	}

	res, err := e.remote.ListMessages(ctx, folder, 1, e.cfg.PageSize)

	e.mu.Lock()
	// Never stay stuck in a fetching state; prior data is preserved on
	// failure.
	entry.LoadState = cache.Loaded
	if err != nil {
		e.mu.Unlock()
		if manual {
			e.emit(model.Event{Type: model.EventFetchFailed, Folder: folder, Err: err})
		}
		return fmt.Errorf("full fetch of %s: %w", folder, err)
	}
	e.cache.Replace(folder, res.Messages)
	now := e.now()
	entry.LastFetchAt = &now
	count := len(res.Messages)
	e.mu.Unlock()

	e.saveSnapshot(ctx, folder)
	e.emit(model.Event{Type: model.EventSynced, Folder: folder, Count: count})
	return nil
}

// loadOffline serves a fetch from the durable snapshot. A usable
// snapshot replaces the cache; a miss leaves the folder loaded and
// empty and signals that no offline data exists.
func (e *Engine) loadOffline(ctx context.Context, folder model.Folder) error {
	snap, err := e.store.LoadFolder(ctx, e.userID, folder, e.snapshotMaxAge())
	if err != nil {
		log.Printf("mailsync: reading %s snapshot: %v", folder, err)
		snap = nil
	}

	e.mu.Lock()
	entry := e.cache.Get(folder)
	entry.LoadState = cache.Loaded
	if snap != nil {
		e.cache.Replace(folder, snap.Messages)
		savedAt := snap.SavedAt
		entry.LastFetchAt = &savedAt
	}
	e.mu.Unlock()

	if snap == nil {
		e.emit(model.Event{Type: model.EventOfflineCacheMiss, Folder: folder})
		return fmt.Errorf("offline fetch of %s: %w", folder, ErrNoOfflineData)
	}

	e.emit(model.Event{Type: model.EventSynced, Folder: folder, Count: len(snap.Messages)})
	return nil
}

// fetchIncremental requests only messages newer than the folder's last
// fetch and merges the genuinely new ones, preserving newest-first
// order. It is the preferred path when a warm snapshot already restored
// the bulk of the data.
func (e *Engine) fetchIncremental(ctx context.Context, folder model.Folder) error {
	e.mu.Lock()
	entry := e.cache.Get(folder)
	if entry.LoadState.Fetching() {
		e.mu.Unlock()
		return nil
	}
	if entry.LastFetchAt == nil {
		e.mu.Unlock()
		return fmt.Errorf("incremental fetch of %s: %w", folder, ErrNoFetchBaseline)
	}
	if !e.online {
		e.mu.Unlock()
		return nil
	}
	since := *entry.LastFetchAt
	entry.LoadState = cache.BackgroundSyncing
	e.mu.Unlock()

	res, err := e.remote.ListNewMessages(ctx, folder, since, e.cfg.PageSize)

	e.mu.Lock()
	entry.LoadState = cache.Loaded
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("incremental fetch of %s: %w", folder, err)
	}

	added := 0
	for _, msg := range res.Messages {
		if e.cache.UpsertOne(folder, msg) {
			added++
		}
	}
	now := e.now()
	entry.LastFetchAt = &now
	e.mu.Unlock()

	e.saveSnapshot(ctx, folder)
	e.emit(model.Event{Type: model.EventSynced, Folder: folder, Count: added})
	return nil
}

// fetchIfStale delegates to fetchFull unless this is a background sync
// and the folder's data is younger than the staleness window. Frequent
// visibility triggers collapse into no-ops this way.
func (e *Engine) fetchIfStale(
	ctx context.Context,
	folder model.Folder,
	background bool,
) error {
	if background {
		e.mu.Lock()
		entry := e.cache.Get(folder)
		fresh := entry.LastFetchAt != nil &&
			e.now().Sub(*entry.LastFetchAt) < e.staleAfter()
		e.mu.Unlock()
		if fresh {
			return nil
		}
	}
	return e.fetchFull(ctx, folder, false, background)
}

// hydrate fills a cold folder cache from the local snapshot, reporting
// whether a usable snapshot existed. The snapshot's age becomes the
// fetch baseline so a follow-up delta fetch only pulls what is missing.
func (e *Engine) hydrate(ctx context.Context, folder model.Folder) bool {
	snap, err := e.store.LoadFolder(ctx, e.userID, folder, e.snapshotMaxAge())
	if err != nil {
		log.Printf("mailsync: reading %s snapshot: %v", folder, err)
		return false
	}
	if snap == nil {
		return false
	}

	e.mu.Lock()
	entry := e.cache.Get(folder)
	if entry.LoadState != cache.Unloaded {
		// A fetch got there first; keep its result.
		e.mu.Unlock()
		return true
	}
	e.cache.Replace(folder, snap.Messages)
	entry.LoadState = cache.Loaded
	savedAt := snap.SavedAt
	entry.LastFetchAt = &savedAt
	e.mu.Unlock()
	return true
}

// sweep runs a background staleness check across every folder. Folders
// are independent partitions; failures are logged per folder and never
// abort the sweep.
func (e *Engine) sweep(ctx context.Context) {
	for _, folder := range model.AllFolders {
		if err := e.fetchIfStale(ctx, folder, true); err != nil {
			log.Printf("mailsync: background sync of %s: %v", folder, err)
		}
	}
}
