package model

import (
	"encoding/json"
	"time"
)

// ActionType identifies the kind of mutation captured in the offline queue.
type ActionType string

const (
	ActionSend          ActionType = "send"
	ActionSaveDraft     ActionType = "saveDraft"
	ActionMarkSpam      ActionType = "markSpam"
	ActionReportNotSpam ActionType = "reportNotSpam"
)

// PendingAction is a user-initiated mutation captured while disconnected.
// It is created on enqueue, destroyed on successful replay, and re-enqueued
// (never duplicated) when a replay attempt fails.
type PendingAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// MessagePayload is the payload for send and saveDraft actions.
type MessagePayload struct {
	Message Message `json:"message"`
}

// SpamPayload is the payload for markSpam and reportNotSpam actions.
type SpamPayload struct {
	IDs []string `json:"ids"`
}
