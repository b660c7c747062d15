package model

import "time"

// Folder is a named partition of messages.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderDraft   Folder = "draft"
	FolderArchive Folder = "archive"
	FolderSpam    Folder = "spam"
)

// AllFolders lists every folder, in the order background sweeps visit them.
var AllFolders = []Folder{
	FolderInbox,
	FolderSent,
	FolderDraft,
	FolderArchive,
	FolderSpam,
}

// Valid reports whether f is one of the known folders.
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDraft, FolderArchive, FolderSpam:
		return true
	}
	return false
}

// AttachmentRef holds metadata about a message attachment. Attachment
// content is downloaded separately and is not cached by the engine.
type AttachmentRef struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Message is the cached representation of a single mail message.
type Message struct {
	// ID is the opaque unique identifier, stable across fetches.
	// It is unique within a folder; a move rewrites Folder atomically.
	ID string `json:"id"`

	// Folder is the partition this message currently belongs to.
	Folder Folder `json:"folder"`

	// From is the sender address.
	From string `json:"from"`

	// To lists the recipient addresses.
	To []string `json:"to"`

	// Subject is the message subject line.
	Subject string `json:"subject"`

	// BodyPlain is the plain-text body.
	BodyPlain string `json:"body_plain"`

	// BodyHTML is the HTML body, if the message carries one.
	BodyHTML string `json:"body_html"`

	// Timestamp is the per-folder sort key; caches keep newest first.
	Timestamp time.Time `json:"timestamp"`

	IsRead      bool `json:"is_read"`
	IsStarred   bool `json:"is_starred"`
	IsImportant bool `json:"is_important"`
	IsSnoozed   bool `json:"is_snoozed"`

	// SnoozeUntil is set only when IsSnoozed is true.
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`

	HasAttachment bool            `json:"has_attachment"`
	Attachments   []AttachmentRef `json:"attachments,omitempty"`
}
