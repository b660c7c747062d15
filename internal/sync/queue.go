package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/nhle/mailsync/internal/model"
)

// Send delivers a message through the remote store, capturing it in the
// offline queue when disconnected. After an online send a delta fetch
// of the sent folder is scheduled to pick up the committed copy.
func (e *Engine) Send(ctx context.Context, msg model.Message) error {
	if !e.Online() {
		return e.enqueue(ctx, model.ActionSend, model.MessagePayload{Message: msg})
	}

	if err := e.remote.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	e.scheduleIncremental(model.FolderSent)
	return nil
}

// SaveDraft stores a draft remotely, capturing it in the offline queue
// when disconnected.
func (e *Engine) SaveDraft(ctx context.Context, msg model.Message) error {
	if !e.Online() {
		return e.enqueue(ctx, model.ActionSaveDraft, model.MessagePayload{Message: msg})
	}

	if err := e.remote.SaveDraft(ctx, msg); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	e.scheduleIncremental(model.FolderDraft)
	return nil
}

// PendingActions returns a copy of the offline queue in replay order.
func (e *Engine) PendingActions() []model.PendingAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.PendingAction, len(e.queue))
	copy(out, e.queue)
	return out
}

// enqueue appends a pending action to the queue and persists the new
// list.
func (e *Engine) enqueue(ctx context.Context, typ model.ActionType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s action: %w", typ, err)
	}

	action := model.PendingAction{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   data,
		CreatedAt: e.now(),
	}

	e.mu.Lock()
	e.queue = append(e.queue, action)
	snapshot := make([]model.PendingAction, len(e.queue))
	copy(snapshot, e.queue)
	e.mu.Unlock()

	e.persistQueue(ctx, snapshot)
	return nil
}

// ReplayAll replays the offline action queue in FIFO order. A failing
// action is kept at the tail of the new queue so one poison action
// cannot block the rest; each drop or retention is re-persisted so a
// crash mid-replay never duplicates a side effect. Replay never runs
// concurrently with itself.
func (e *Engine) ReplayAll(ctx context.Context) {
	e.mu.Lock()
	if e.replaying || len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	e.replaying = true
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()

	var retained []model.PendingAction
	for i, action := range pending {
		if err := e.applyAction(ctx, action); err != nil {
			log.Printf("mailsync: replaying %s action %s: %v",
				action.Type, action.ID, err)
			retained = append(retained, action)
		}

		remaining := make([]model.PendingAction, 0, len(retained)+len(pending)-i-1)
		remaining = append(remaining, retained...)
		remaining = append(remaining, pending[i+1:]...)
		e.persistQueue(ctx, remaining)
	}

	e.mu.Lock()
	// Anything enqueued while the replay ran goes behind the retained
	// failures, which are older.
	e.queue = append(retained, e.queue...)
	final := make([]model.PendingAction, len(e.queue))
	copy(final, e.queue)
	e.replaying = false
	e.mu.Unlock()

	e.persistQueue(ctx, final)
}

// applyAction issues the remote write for one queued action.
func (e *Engine) applyAction(ctx context.Context, action model.PendingAction) error {
	switch action.Type {
	case model.ActionSend, model.ActionSaveDraft:
		var p model.MessagePayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decoding %s payload: %w", action.Type, err)
		}
		if action.Type == model.ActionSend {
			return e.remote.Send(ctx, p.Message)
		}
		return e.remote.SaveDraft(ctx, p.Message)

	case model.ActionMarkSpam, model.ActionReportNotSpam:
		var p model.SpamPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return fmt.Errorf("decoding %s payload: %w", action.Type, err)
		}
		if action.Type == model.ActionMarkSpam {
			return e.remote.MarkSpam(ctx, p.IDs)
		}
		return e.remote.ReportNotSpam(ctx, p.IDs)
	}

	return fmt.Errorf("unknown action type %q", action.Type)
}

// persistQueue mirrors the queue to the store. Failures are logged and
// swallowed; the in-memory queue stays authoritative for the session.
func (e *Engine) persistQueue(ctx context.Context, actions []model.PendingAction) {
	if err := e.store.ReplaceActions(ctx, e.userID, actions); err != nil {
		log.Printf("mailsync: persisting action queue: %v", err)
	}
}

// loadQueue restores the pending action queue on session start.
func (e *Engine) loadQueue(ctx context.Context) {
	actions, err := e.store.GetActions(ctx, e.userID)
	if err != nil {
		log.Printf("mailsync: loading action queue: %v", err)
		return
	}
	e.queue = actions
}
