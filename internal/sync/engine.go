// Package sync implements the multi-folder synchronization engine. It
// reconciles per-folder message caches against the remote store under
// three update sources (full refresh, incremental delta fetch, and
// push-delivered events), hydrates cold caches from durable snapshots,
// and captures offline mutations for ordered replay on reconnect.
package sync

import (
	"context"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/push"
	"github.com/nhle/mailsync/internal/remote"
	"github.com/nhle/mailsync/internal/store"
)

// Engine owns the folder caches for one user session. It is constructed
// on session start and torn down with Close on logout; no state outlives
// the session except the durable store mirror.
type Engine struct {
	userID string
	cfg    model.SyncConfig

	remote remote.Client
	store  store.Store
	sched  Scheduler
	now    func() time.Time

	mu           gosync.Mutex
	cache        *cache.Cache
	queue        []model.PendingAction
	online       bool
	replaying    bool
	closed       bool
	activeFolder model.Folder

	seen     map[dedupeKey]time.Time
	debounce map[model.Folder]func()

	hub        *push.Hub
	pushCancel func()
	pollCancel func()

	events chan model.Event
}

// New constructs the engine for one user session, restoring any pending
// offline actions from the durable store. The engine starts online with
// the polling fallback armed; AttachPush switches it to push-driven
// synchronization.
func New(
	userID string,
	rc remote.Client,
	st store.Store,
	cfg model.SyncConfig,
) *Engine {
	def := model.DefaultSyncConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.SnapshotMaxAgeSec <= 0 {
		cfg.SnapshotMaxAgeSec = def.SnapshotMaxAgeSec
	}
	if cfg.StaleAfterSec <= 0 {
		cfg.StaleAfterSec = def.StaleAfterSec
	}
	if cfg.DedupeWindowSec <= 0 {
		cfg.DedupeWindowSec = def.DedupeWindowSec
	}
	if cfg.DebounceDelayMs <= 0 {
		cfg.DebounceDelayMs = def.DebounceDelayMs
	}
	if cfg.PollFallbackSec <= 0 {
		cfg.PollFallbackSec = def.PollFallbackSec
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	e := &Engine{
		userID:   userID,
		cfg:      cfg,
		remote:   rc,
		store:    st,
		sched:    NewScheduler(),
		now:      time.Now,
		cache:    cache.New(),
		online:   true,
		seen:     make(map[dedupeKey]time.Time),
		debounce: make(map[model.Folder]func()),
		events:   make(chan model.Event, cfg.EventBuffer),
	}

	e.loadQueue(context.Background())

	e.mu.Lock()
	e.schedulePollLocked()
	e.mu.Unlock()

	return e
}

// Close tears the session down: timers are cancelled and the push
// subscription is released. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	for folder, cancel := range e.debounce {
		cancel()
		delete(e.debounce, folder)
	}
	cancel := e.pushCancel
	e.pushCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Events returns the channel carrying UI-facing notifications. Delivery
// is best-effort: events are dropped rather than ever blocking the
// engine.
func (e *Engine) Events() <-chan model.Event {
	return e.events
}

func (e *Engine) emit(ev model.Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// ActivateFolder makes folder the active view. On cold start the cache
// is hydrated from the local snapshot first, then brought up to date:
// a warm snapshot gets a cheap delta fetch, a cold one a full fetch.
// Re-activating a loaded folder only refreshes when its data has gone
// stale.
func (e *Engine) ActivateFolder(ctx context.Context, folder model.Folder) error {
	e.mu.Lock()
	e.activeFolder = folder
	state := e.cache.Get(folder).LoadState
	online := e.online
	e.mu.Unlock()

	if state != cache.Unloaded {
		return e.fetchIfStale(ctx, folder, true)
	}

	if !online {
		return e.fetchFull(ctx, folder, false, false)
	}

	if e.hydrate(ctx, folder) {
		return e.fetchIncremental(ctx, folder)
	}
	return e.fetchFull(ctx, folder, false, false)
}

// Refresh performs a manual full fetch, surfacing success or failure
// both on the returned error and on the event channel.
func (e *Engine) Refresh(ctx context.Context, folder model.Folder) error {
	return e.fetchFull(ctx, folder, true, false)
}

// Search filters the folder's cached messages by substring match over
// subject, sender, recipients, and bodies. It is a pure projection:
// no cache mutation, no fetch.
func (e *Engine) Search(folder model.Folder, query string) []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Search(folder, query)
}

// Messages returns a copy of the folder's cached messages, newest first.
func (e *Engine) Messages(folder model.Folder) []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Snapshot(folder)
}

// UnreadCount returns the folder's unread message count.
func (e *Engine) UnreadCount(folder model.Folder) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.UnreadCount(folder)
}

// LoadState returns the folder's current load state.
func (e *Engine) LoadState(folder model.Folder) cache.LoadState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Get(folder).LoadState
}

// MarkRead sets the read flag on a cached message and mirrors the
// folder to the local store.
func (e *Engine) MarkRead(ctx context.Context, folder model.Folder, id string, read bool) {
	e.mu.Lock()
	changed := e.cache.Update(folder, id, func(m *model.Message) {
		m.IsRead = read
	})
	e.mu.Unlock()

	if changed {
		e.saveSnapshot(ctx, folder)
	}
}

// ToggleStar flips the star flag on a cached message.
func (e *Engine) ToggleStar(ctx context.Context, folder model.Folder, id string) {
	e.mu.Lock()
	changed := e.cache.Update(folder, id, func(m *model.Message) {
		m.IsStarred = !m.IsStarred
	})
	e.mu.Unlock()

	if changed {
		e.saveSnapshot(ctx, folder)
	}
}

// Archive moves a cached message into the archive folder. The remote
// store exposes no archive endpoint, so this is a local projection that
// the next full fetch reconciles.
func (e *Engine) Archive(ctx context.Context, id string) error {
	e.mu.Lock()
	from := e.folderOfLocked(id, model.FolderArchive)
	if from == "" {
		e.mu.Unlock()
		return fmt.Errorf("archive: %w: %s", ErrNotCached, id)
	}
	e.cache.Move(from, model.FolderArchive, []string{id}, nil)
	e.mu.Unlock()

	e.saveSnapshot(ctx, from)
	e.saveSnapshot(ctx, model.FolderArchive)
	return nil
}

// MarkAsSpam optimistically moves the message into the spam folder and
// reconciles with the remote store. Offline, the remote call is queued
// for replay; the optimistic local move happens either way.
func (e *Engine) MarkAsSpam(ctx context.Context, id string) error {
	e.mu.Lock()
	from := e.folderOfLocked(id, model.FolderSpam)
	if from == "" {
		e.mu.Unlock()
		return fmt.Errorf("mark as spam: %w: %s", ErrNotCached, id)
	}
	e.cache.Move(from, model.FolderSpam, []string{id}, nil)
	online := e.online
	e.mu.Unlock()

	e.saveSnapshot(ctx, from)
	e.saveSnapshot(ctx, model.FolderSpam)

	if !online {
		return e.enqueue(ctx, model.ActionMarkSpam, model.SpamPayload{IDs: []string{id}})
	}

	if err := e.remote.MarkSpam(ctx, []string{id}); err != nil {
		log.Printf("mailsync: marking %s as spam remotely: %v", id, err)
	}
	e.reconcile(ctx, from, model.FolderSpam)
	return nil
}

// ReportNotSpam optimistically moves the message from spam back to the
// inbox, mirroring MarkAsSpam.
func (e *Engine) ReportNotSpam(ctx context.Context, id string) error {
	e.mu.Lock()
	moved := e.cache.Move(model.FolderSpam, model.FolderInbox, []string{id}, nil)
	online := e.online
	e.mu.Unlock()

	if len(moved) == 0 {
		return fmt.Errorf("report not spam: %w: %s", ErrNotCached, id)
	}

	e.saveSnapshot(ctx, model.FolderSpam)
	e.saveSnapshot(ctx, model.FolderInbox)

	if !online {
		return e.enqueue(ctx, model.ActionReportNotSpam, model.SpamPayload{IDs: []string{id}})
	}

	if err := e.remote.ReportNotSpam(ctx, []string{id}); err != nil {
		log.Printf("mailsync: reporting %s not spam remotely: %v", id, err)
	}
	e.reconcile(ctx, model.FolderSpam, model.FolderInbox)
	return nil
}

// reconcile re-fetches both ends of an optimistic move to converge on
// the remote truth.
func (e *Engine) reconcile(ctx context.Context, a, b model.Folder) {
	if err := e.fetchFull(ctx, a, false, true); err != nil {
		log.Printf("mailsync: reconciling %s: %v", a, err)
	}
	if err := e.fetchFull(ctx, b, false, true); err != nil {
		log.Printf("mailsync: reconciling %s: %v", b, err)
	}
}

// folderOfLocked returns the folder caching the given id, skipping
// exclude. Caller holds e.mu.
func (e *Engine) folderOfLocked(id string, exclude model.Folder) model.Folder {
	for _, folder := range model.AllFolders {
		if folder == exclude {
			continue
		}
		if e.cache.Contains(folder, id) {
			return folder
		}
	}
	return ""
}

// saveSnapshot mirrors a folder's cache to the local store. Failures
// are logged and swallowed: durability is best-effort, never a reason
// to fail the caller.
func (e *Engine) saveSnapshot(ctx context.Context, folder model.Folder) {
	e.mu.Lock()
	messages := e.cache.Snapshot(folder)
	e.mu.Unlock()

	if err := e.store.SaveFolder(ctx, e.userID, folder, messages); err != nil {
		log.Printf("mailsync: persisting %s snapshot: %v", folder, err)
	}
}

func (e *Engine) snapshotMaxAge() time.Duration {
	return time.Duration(e.cfg.SnapshotMaxAgeSec) * time.Second
}

func (e *Engine) staleAfter() time.Duration {
	return time.Duration(e.cfg.StaleAfterSec) * time.Second
}

func (e *Engine) dedupeWindow() time.Duration {
	return time.Duration(e.cfg.DedupeWindowSec) * time.Second
}

func (e *Engine) debounceDelay() time.Duration {
	return time.Duration(e.cfg.DebounceDelayMs) * time.Millisecond
}

func (e *Engine) pollPeriod() time.Duration {
	return time.Duration(e.cfg.PollFallbackSec) * time.Second
}
