package sync

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/push"
)

// dedupeKey identifies a push delivery for redundancy suppression.
type dedupeKey struct {
	id     string
	folder model.Folder
}

// OnMessageEvent merges one push-delivered message into its folder
// cache. Redundant deliveries of the same (id, folder) inside the
// dedupe window are discarded, as are messages a fetch already cached.
// A merged inbox or active-folder message raises a new-message event.
func (e *Engine) OnMessageEvent(folder model.Folder, msg model.Message) {
	e.mu.Lock()
	now := e.now()
	key := dedupeKey{id: msg.ID, folder: folder}
	if seen, ok := e.seen[key]; ok && now.Sub(seen) < e.dedupeWindow() {
		e.mu.Unlock()
		return
	}
	e.seen[key] = now
	e.pruneSeenLocked(now)

	if !e.cache.UpsertOne(folder, msg) {
		e.mu.Unlock()
		return
	}
	notify := folder == model.FolderInbox || folder == e.activeFolder
	e.mu.Unlock()

	e.saveSnapshot(context.Background(), folder)
	if notify {
		e.emit(model.Event{Type: model.EventNewMessage, Folder: folder, Count: 1})
	}
}

// pruneSeenLocked drops dedupe entries past the window. Caller holds e.mu.
func (e *Engine) pruneSeenLocked(now time.Time) {
	for key, at := range e.seen {
		if now.Sub(at) >= e.dedupeWindow() {
			delete(e.seen, key)
		}
	}
}

// OnSentEvent handles the lightweight sent notification. The payload is
// not delivered on this channel, so schedule a delta fetch of the sent
// folder once the remote store has had time to commit.
func (e *Engine) OnSentEvent() {
	e.scheduleIncremental(model.FolderSent)
}

// OnDraftSavedEvent mirrors OnSentEvent for the draft folder.
func (e *Engine) OnDraftSavedEvent() {
	e.scheduleIncremental(model.FolderDraft)
}

// scheduleIncremental debounces an incremental fetch for the folder: a
// burst of notifications collapses into one fetch after the delay.
func (e *Engine) scheduleIncremental(folder model.Folder) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if cancel, ok := e.debounce[folder]; ok {
		cancel()
	}
	e.debounce[folder] = e.sched.AfterFunc(e.debounceDelay(), func() {
		e.mu.Lock()
		delete(e.debounce, folder)
		e.mu.Unlock()

		err := e.fetchIncremental(context.Background(), folder)
		if err != nil && !errors.Is(err, ErrNoFetchBaseline) {
			log.Printf("mailsync: delta fetch of %s: %v", folder, err)
		}
	})
}

// AttachPush subscribes the engine to the push hub and cancels the
// polling fallback. Events are consumed until DetachPush or Close
// releases the subscription.
func (e *Engine) AttachPush(hub *push.Hub) {
	e.mu.Lock()
	if e.closed || e.pushCancel != nil {
		e.mu.Unlock()
		return
	}
	ch, cancel := hub.Subscribe(e.userID)
	e.hub = hub
	e.pushCancel = cancel
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	e.mu.Unlock()

	go func() {
		for ev := range ch {
			e.dispatchPush(ev)
		}
	}()
}

// DetachPush drops the hub subscription and arms the polling fallback,
// degrading to fetch-based synchronization.
func (e *Engine) DetachPush() {
	e.mu.Lock()
	cancel := e.pushCancel
	e.pushCancel = nil
	if cancel != nil && e.pollCancel == nil && !e.closed {
		e.schedulePollLocked()
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// SetVisible tracks host visibility: a hidden session drops its push
// subscription, a visible one re-registers and sweeps for staleness.
func (e *Engine) SetVisible(ctx context.Context, visible bool) {
	if !visible {
		e.DetachPush()
		return
	}

	e.mu.Lock()
	hub := e.hub
	e.mu.Unlock()
	if hub != nil {
		e.AttachPush(hub)
	}
	e.sweep(ctx)
}

func (e *Engine) dispatchPush(ev push.Event) {
	switch ev.Kind {
	case push.KindReceived:
		if ev.Message == nil || !ev.Folder.Valid() {
			return
		}
		e.OnMessageEvent(ev.Folder, *ev.Message)
	case push.KindSent:
		e.OnSentEvent()
	case push.KindDraftSaved:
		e.OnDraftSavedEvent()
	}
}

// schedulePollLocked arms the polling fallback sweep, re-arming itself
// after each run for as long as the push channel stays detached.
// Caller holds e.mu.
func (e *Engine) schedulePollLocked() {
	e.pollCancel = e.sched.AfterFunc(e.pollPeriod(), func() {
		e.sweep(context.Background())

		e.mu.Lock()
		if e.pushCancel == nil && !e.closed {
			e.schedulePollLocked()
		} else {
			e.pollCancel = nil
		}
		e.mu.Unlock()
	})
}
