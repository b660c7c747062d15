package model

// EventType identifies a UI-facing notification emitted by the engine.
type EventType string

const (
	// EventNewMessage is emitted when a push-delivered message lands in
	// the inbox or the currently active folder.
	EventNewMessage EventType = "new_message"

	// EventFetchFailed is emitted when a manual refresh fails. Background
	// sync failures are silent.
	EventFetchFailed EventType = "fetch_failed"

	// EventOfflineCacheMiss is emitted when a folder is activated offline
	// and no usable local snapshot exists.
	EventOfflineCacheMiss EventType = "offline_cache_miss"

	// EventSynced is emitted when a fetch completes successfully.
	EventSynced EventType = "synced"
)

// Event is a notification delivered to the UI layer.
type Event struct {
	Type   EventType
	Folder Folder

	// Count is the number of messages involved: new messages for
	// EventNewMessage, merged messages for EventSynced.
	Count int

	// Err carries the failure cause for EventFetchFailed.
	Err error
}
