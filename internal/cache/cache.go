package cache

import (
	"strings"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// LoadState describes the fetch lifecycle of a folder entry.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	BackgroundSyncing
)

// String returns the lowercase state name.
func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case BackgroundSyncing:
		return "background_syncing"
	}
	return "unloaded"
}

// Fetching reports whether a fetch for this entry is already in flight.
// Loading and BackgroundSyncing are mutually exclusive per folder.
func (s LoadState) Fetching() bool {
	return s == Loading || s == BackgroundSyncing
}

// Entry is the in-memory representation of one folder: its message list
// (newest first) plus load-state bookkeeping.
type Entry struct {
	Messages    []model.Message
	LoadState   LoadState
	LastFetchAt *time.Time
}

// Cache holds the per-folder entries for one user session. It is not
// safe for concurrent use; the engine serializes all access.
type Cache struct {
	entries map[model.Folder]*Entry
}

// New returns an empty cache with an Unloaded entry per folder.
func New() *Cache {
	c := &Cache{entries: make(map[model.Folder]*Entry, len(model.AllFolders))}
	for _, f := range model.AllFolders {
		c.entries[f] = &Entry{}
	}
	return c
}

// Get returns the folder's entry, creating it for unknown folders.
func (c *Cache) Get(folder model.Folder) *Entry {
	e, ok := c.entries[folder]
	if !ok {
		e = &Entry{}
		c.entries[folder] = e
	}
	return e
}

// Replace swaps the folder's entire message list. Messages keep the order
// they were given in; fetch results arrive newest first.
func (c *Cache) Replace(folder model.Folder, messages []model.Message) {
	e := c.Get(folder)
	e.Messages = make([]model.Message, len(messages))
	copy(e.Messages, messages)
}

// Contains reports whether the folder already caches the given id.
func (c *Cache) Contains(folder model.Folder, id string) bool {
	for _, m := range c.Get(folder).Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// UpsertOne inserts a message into the folder, keeping newest-first order.
// It is idempotent: when the id is already cached the existing message is
// left unchanged and false is returned.
func (c *Cache) UpsertOne(folder model.Folder, msg model.Message) bool {
	if c.Contains(folder, msg.ID) {
		return false
	}

	msg.Folder = folder
	e := c.Get(folder)

	at := len(e.Messages)
	for i, m := range e.Messages {
		if msg.Timestamp.After(m.Timestamp) {
			at = i
			break
		}
	}

	e.Messages = append(e.Messages, model.Message{})
	copy(e.Messages[at+1:], e.Messages[at:])
	e.Messages[at] = msg
	return true
}

// Update applies fn to the cached message with the given id. It returns
// false when the id is not cached. This is the only way an existing
// message changes in place (mark read, star, snooze).
func (c *Cache) Update(folder model.Folder, id string, fn func(*model.Message)) bool {
	e := c.Get(folder)
	for i := range e.Messages {
		if e.Messages[i].ID == id {
			fn(&e.Messages[i])
			return true
		}
	}
	return false
}

// Remove deletes the given ids from the folder and returns the removed
// messages in their cached order.
func (c *Cache) Remove(folder model.Folder, ids []string) []model.Message {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	e := c.Get(folder)
	var removed []model.Message
	kept := e.Messages[:0]
	for _, m := range e.Messages {
		if want[m.ID] {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	e.Messages = kept
	return removed
}

// Move atomically transfers the given ids from one folder to another,
// rewriting each message's folder field and applying transform when it
// is non-nil. The moved messages are prepended to the destination. No
// caller can observe a state where a message is in neither or both
// folders: the whole operation completes before Move returns.
func (c *Cache) Move(
	from, to model.Folder,
	ids []string,
	transform func(*model.Message),
) []model.Message {
	moved := c.Remove(from, ids)
	if len(moved) == 0 {
		return nil
	}

	for i := range moved {
		moved[i].Folder = to
		if transform != nil {
			transform(&moved[i])
		}
	}

	dst := c.Get(to)
	dst.Messages = append(append([]model.Message{}, moved...), dst.Messages...)
	return moved
}

// Snapshot returns a copy of the folder's message list.
func (c *Cache) Snapshot(folder model.Folder) []model.Message {
	e := c.Get(folder)
	out := make([]model.Message, len(e.Messages))
	copy(out, e.Messages)
	return out
}

// UnreadCount returns the number of unread messages in the folder.
func (c *Cache) UnreadCount(folder model.Folder) int {
	count := 0
	for _, m := range c.Get(folder).Messages {
		if !m.IsRead {
			count++
		}
	}
	return count
}

// Search filters the folder's cached messages by case-insensitive
// substring match over subject, sender, recipients, and both bodies.
// It is a pure projection: no mutation, no fetch.
func (c *Cache) Search(folder model.Folder, query string) []model.Message {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.Snapshot(folder)
	}

	var out []model.Message
	for _, m := range c.Get(folder).Messages {
		if matches(m, query) {
			out = append(out, m)
		}
	}
	return out
}

func matches(m model.Message, query string) bool {
	if strings.Contains(strings.ToLower(m.Subject), query) ||
		strings.Contains(strings.ToLower(m.From), query) ||
		strings.Contains(strings.ToLower(m.BodyPlain), query) ||
		strings.Contains(strings.ToLower(m.BodyHTML), query) {
		return true
	}
	for _, to := range m.To {
		if strings.Contains(strings.ToLower(to), query) {
			return true
		}
	}
	return false
}
