package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/tests/testutil"
)

const testUser = "me@example.com"

// fakeRemote implements remote.Client with canned results and call
// recording.
type fakeRemote struct {
	mu    gosync.Mutex
	calls []string

	listResult    map[model.Folder]*remote.ListResult
	listErr       error
	listNewResult map[model.Folder]*remote.ListResult
	listNewErr    error
	lastSince     time.Time

	sendErr      error
	saveDraftErr error
	markSpamErr  error
	notSpamErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		listResult:    make(map[model.Folder]*remote.ListResult),
		listNewResult: make(map[model.Folder]*remote.ListResult),
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.calls {
		if c == call {
			count++
		}
	}
	return count
}

func (f *fakeRemote) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) ListMessages(
	_ context.Context, folder model.Folder, page, pageSize int,
) (*remote.ListResult, error) {
	f.record("list " + string(folder))
	if f.listErr != nil {
		return nil, f.listErr
	}
	if res, ok := f.listResult[folder]; ok {
		return res, nil
	}
	return &remote.ListResult{}, nil
}

func (f *fakeRemote) ListNewMessages(
	_ context.Context, folder model.Folder, since time.Time, maxResults int,
) (*remote.ListResult, error) {
	f.record("listNew " + string(folder))
	f.mu.Lock()
	f.lastSince = since
	f.mu.Unlock()
	if f.listNewErr != nil {
		return nil, f.listNewErr
	}
	if res, ok := f.listNewResult[folder]; ok {
		return res, nil
	}
	return &remote.ListResult{}, nil
}

func (f *fakeRemote) Send(_ context.Context, msg model.Message) error {
	f.record("send")
	return f.sendErr
}

func (f *fakeRemote) SaveDraft(_ context.Context, msg model.Message) error {
	f.record("saveDraft")
	return f.saveDraftErr
}

func (f *fakeRemote) MarkSpam(_ context.Context, ids []string) error {
	f.record("markSpam")
	return f.markSpamErr
}

func (f *fakeRemote) ReportNotSpam(_ context.Context, ids []string) error {
	f.record("reportNotSpam")
	return f.notSpamErr
}

// fakeScheduler records scheduled tasks and fires them on demand.
type fakeScheduler struct {
	mu    gosync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: d, fn: f}
	s.tasks = append(s.tasks, task)
	return func() {
		s.mu.Lock()
		task.cancelled = true
		s.mu.Unlock()
	}
}

// fire runs every pending task that has not been cancelled.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var due []*fakeTask
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			task.fired = true
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		task.fn()
	}
}

// pending returns the number of armed, unfired tasks.
func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			count++
		}
	}
	return count
}

func newTestEngine(t *testing.T, rc remote.Client) (*Engine, *store.SQLiteStore) {
	t.Helper()

	st := testutil.NewTestStore(t)
	e := New(testUser, rc, st, model.SyncConfig{})
	t.Cleanup(e.Close)
	return e, st
}

// swapScheduler replaces the engine's scheduler, disarming the polling
// fallback timer the constructor started on the process clock.
func swapScheduler(e *Engine, sched Scheduler) {
	e.mu.Lock()
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	e.sched = sched
	e.mu.Unlock()
}

func setClock(e *Engine, at time.Time) {
	e.mu.Lock()
	e.now = func() time.Time { return at }
	e.mu.Unlock()
}

// seedFolder installs messages and a fetch baseline directly in the cache.
func seedFolder(e *Engine, folder model.Folder, baseline time.Time, messages ...model.Message) {
	e.mu.Lock()
	e.cache.Replace(folder, messages)
	entry := e.cache.Get(folder)
	entry.LoadState = cache.Loaded
	entry.LastFetchAt = &baseline
	e.mu.Unlock()
}

func drainEvents(e *Engine) []model.Event {
	var out []model.Event
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []model.Event, typ model.EventType, folder model.Folder) bool {
	for _, ev := range events {
		if ev.Type == typ && ev.Folder == folder {
			return true
		}
	}
	return false
}

func testMsg(id string, offset int) model.Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Message{
		ID:        id,
		Folder:    model.FolderInbox,
		From:      "alice@example.com",
		To:        []string{testUser},
		Subject:   "subject " + id,
		BodyPlain: "body " + id,
		Timestamp: base.Add(time.Duration(offset) * time.Minute),
	}
}

func cachedIDs(e *Engine, folder model.Folder) []string {
	messages := e.Messages(folder)
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
