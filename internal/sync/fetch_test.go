package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

func TestActivateFolderColdFetchesFull(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	rc.listResult[model.FolderInbox] = &remote.ListResult{
		Messages: []model.Message{testMsg("b", 5), testMsg("a", 0)},
		Total:    2,
	}
	e, _ := newTestEngine(t, rc)

	if err := e.ActivateFolder(ctx, model.FolderInbox); err != nil {
		t.Fatalf("ActivateFolder() error = %v", err)
	}

	if got := cachedIDs(e, model.FolderInbox); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("cached ids = %v, want [b a]", got)
	}
	if got := e.LoadState(model.FolderInbox); got != cache.Loaded {
		t.Fatalf("load state = %v, want Loaded", got)
	}
	if n := rc.callCount("list inbox"); n != 1 {
		t.Fatalf("list inbox called %d times, want 1", n)
	}
	if !hasEvent(drainEvents(e), model.EventSynced, model.FolderInbox) {
		t.Fatal("expected a synced event for inbox")
	}
}

func TestActivateFolderWarmSnapshotPrefersIncremental(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	rc.listNewResult[model.FolderInbox] = &remote.ListResult{
		Messages: []model.Message{testMsg("c", 10)},
	}
	e, st := newTestEngine(t, rc)

	snapshot := []model.Message{testMsg("b", 5), testMsg("a", 0)}
	if err := st.SaveFolder(ctx, testUser, model.FolderInbox, snapshot); err != nil {
		t.Fatalf("SaveFolder() error = %v", err)
	}

	if err := e.ActivateFolder(ctx, model.FolderInbox); err != nil {
		t.Fatalf("ActivateFolder() error = %v", err)
	}

	if n := rc.callCount("list inbox"); n != 0 {
		t.Fatalf("full fetch ran %d times, want 0", n)
	}
	if n := rc.callCount("listNew inbox"); n != 1 {
		t.Fatalf("delta fetch ran %d times, want 1", n)
	}
	if got := cachedIDs(e, model.FolderInbox); len(got) != 3 || got[0] != "c" {
		t.Fatalf("cached ids = %v, want [c b a]", got)
	}
}

func TestActivateFolderOfflineUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, st := newTestEngine(t, rc)

	snapshot := []model.Message{testMsg("a", 0)}
	if err := st.SaveFolder(ctx, testUser, model.FolderInbox, snapshot); err != nil {
		t.Fatalf("SaveFolder() error = %v", err)
	}

	e.SetOnline(ctx, false)
	if err := e.ActivateFolder(ctx, model.FolderInbox); err != nil {
		t.Fatalf("ActivateFolder() error = %v", err)
	}

	if got := cachedIDs(e, model.FolderInbox); len(got) != 1 || got[0] != "a" {
		t.Fatalf("cached ids = %v, want [a]", got)
	}
	if got := e.LoadState(model.FolderInbox); got != cache.Loaded {
		t.Fatalf("load state = %v, want Loaded", got)
	}
	if calls := rc.callOrder(); len(calls) != 0 {
		t.Fatalf("remote calls = %v, want none while offline", calls)
	}
}

func TestActivateFolderOfflineMissSignals(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, _ := newTestEngine(t, rc)

	e.SetOnline(ctx, false)
	err := e.ActivateFolder(ctx, model.FolderInbox)
	if !errors.Is(err, ErrNoOfflineData) {
		t.Fatalf("ActivateFolder() error = %v, want ErrNoOfflineData", err)
	}

	if got := e.LoadState(model.FolderInbox); got != cache.Loaded {
		t.Fatalf("load state = %v, want Loaded", got)
	}
	if got := e.Messages(model.FolderInbox); len(got) != 0 {
		t.Fatalf("cached %d messages, want 0", len(got))
	}
	if !hasEvent(drainEvents(e), model.EventOfflineCacheMiss, model.FolderInbox) {
		t.Fatal("expected an offline cache miss event")
	}
}

func TestRefreshFailurePreservesCache(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	rc.listResult[model.FolderInbox] = &remote.ListResult{
		Messages: []model.Message{testMsg("a", 0)},
	}
	e, _ := newTestEngine(t, rc)

	if err := e.Refresh(ctx, model.FolderInbox); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	drainEvents(e)

	rc.listErr = errors.New("imap: connection reset")
	if err := e.Refresh(ctx, model.FolderInbox); err == nil {
		t.Fatal("Refresh() error = nil, want failure")
	}

	if got := cachedIDs(e, model.FolderInbox); len(got) != 1 || got[0] != "a" {
		t.Fatalf("cached ids = %v, want prior data preserved", got)
	}
	if got := e.LoadState(model.FolderInbox); got != cache.Loaded {
		t.Fatalf("load state = %v, want Loaded after failure", got)
	}
	if !hasEvent(drainEvents(e), model.EventFetchFailed, model.FolderInbox) {
		t.Fatal("expected a fetch failed event for a manual refresh")
	}
}

func TestBackgroundFetchFailureStaysSilent(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	rc.listErr = errors.New("imap: connection reset")
	e, _ := newTestEngine(t, rc)

	if err := e.fetchIfStale(ctx, model.FolderInbox, true); err == nil {
		t.Fatal("fetchIfStale() error = nil, want failure")
	}
	if hasEvent(drainEvents(e), model.EventFetchFailed, model.FolderInbox) {
		t.Fatal("background failure must not raise a fetch failed event")
	}
}

func TestFetchCollapsesWhileInFlight(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, _ := newTestEngine(t, rc)

	e.mu.Lock()
	e.cache.Get(model.FolderInbox).LoadState = cache.Loading
	e.mu.Unlock()

	if err := e.Refresh(ctx, model.FolderInbox); err != nil {
		t.Fatalf("Refresh() error = %v, want no-op", err)
	}
	if err := e.fetchIncremental(ctx, model.FolderInbox); err != nil {
		t.Fatalf("fetchIncremental() error = %v, want no-op", err)
	}
	if calls := rc.callOrder(); len(calls) != 0 {
		t.Fatalf("remote calls = %v, want none while a fetch is in flight", calls)
	}
}

func TestFetchIfStaleSkipsFreshData(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, _ := newTestEngine(t, rc)

	seedFolder(e, model.FolderInbox, time.Now().Add(-time.Minute), testMsg("a", 0))
	if err := e.fetchIfStale(ctx, model.FolderInbox, true); err != nil {
		t.Fatalf("fetchIfStale() error = %v", err)
	}
	if n := rc.callCount("list inbox"); n != 0 {
		t.Fatalf("fresh folder fetched %d times, want 0", n)
	}

	seedFolder(e, model.FolderInbox, time.Now().Add(-10*time.Minute), testMsg("a", 0))
	if err := e.fetchIfStale(ctx, model.FolderInbox, true); err != nil {
		t.Fatalf("fetchIfStale() error = %v", err)
	}
	if n := rc.callCount("list inbox"); n != 1 {
		t.Fatalf("stale folder fetched %d times, want 1", n)
	}
}

func TestIncrementalFetchMergesOnlyNewMessages(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	x := testMsg("x", 0)
	y := testMsg("y", 5)
	// The remote window overlaps the cached tail; only y is genuinely new.
	rc.listNewResult[model.FolderInbox] = &remote.ListResult{
		Messages: []model.Message{y, x},
	}
	e, _ := newTestEngine(t, rc)

	baseline := time.Now().Add(-10 * time.Minute)
	seedFolder(e, model.FolderInbox, baseline, x)

	if err := e.fetchIncremental(ctx, model.FolderInbox); err != nil {
		t.Fatalf("fetchIncremental() error = %v", err)
	}

	if got := cachedIDs(e, model.FolderInbox); len(got) != 2 || got[0] != "y" || got[1] != "x" {
		t.Fatalf("cached ids = %v, want [y x]", got)
	}
	rc.mu.Lock()
	since := rc.lastSince
	rc.mu.Unlock()
	if !since.Equal(baseline) {
		t.Fatalf("delta fetch since = %v, want baseline %v", since, baseline)
	}

	e.mu.Lock()
	last := e.cache.Get(model.FolderInbox).LastFetchAt
	e.mu.Unlock()
	if last == nil || !last.After(baseline) {
		t.Fatalf("last fetch at = %v, want advanced past %v", last, baseline)
	}

	for _, ev := range drainEvents(e) {
		if ev.Type == model.EventSynced && ev.Folder == model.FolderInbox {
			if ev.Count != 1 {
				t.Fatalf("synced count = %d, want 1", ev.Count)
			}
			return
		}
	}
	t.Fatal("expected a synced event for inbox")
}

func TestIncrementalFetchNeedsBaseline(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, _ := newTestEngine(t, rc)

	err := e.fetchIncremental(ctx, model.FolderInbox)
	if !errors.Is(err, ErrNoFetchBaseline) {
		t.Fatalf("fetchIncremental() error = %v, want ErrNoFetchBaseline", err)
	}
}

func TestIncrementalFetchOfflineIsNoop(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRemote()
	e, _ := newTestEngine(t, rc)

	seedFolder(e, model.FolderInbox, time.Now().Add(-10*time.Minute), testMsg("a", 0))
	e.SetOnline(ctx, false)

	if err := e.fetchIncremental(ctx, model.FolderInbox); err != nil {
		t.Fatalf("fetchIncremental() error = %v, want nil offline", err)
	}
	if calls := rc.callOrder(); len(calls) != 0 {
		t.Fatalf("remote calls = %v, want none while offline", calls)
	}
}
