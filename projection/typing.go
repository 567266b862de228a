package projection

import (
	"container/heap"
	"crm-chat/domain"
	"crm-chat/domain/event"
	"slices"
	"time"
)

// DefaultTypingTTL is how long a typing indicator lives without renewal.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	chat domain.ChatID
	user domain.UserID
}

type typingEntry struct {
	key      typingKey
	deadline time.Time
	index    int
}

// typingQueue is a min-heap on deadlines.
type typingQueue []*typingEntry

func (q typingQueue) Len() int           { return len(q) }
func (q typingQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q typingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *typingQueue) Push(x any) {
	entry := x.(*typingEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *typingQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}

// TypingTracker holds who is typing in which chat, with one scheduled expiry per user.
// Time is always passed in, which keeps it deterministic; the owner arms a single
// timer on Next and calls Expire when it fires.
type TypingTracker struct {
	ttl     time.Duration
	self    domain.UserID
	entries map[typingKey]*typingEntry
	queue   typingQueue
}

func NewTypingTracker(ttl time.Duration, self domain.UserID) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		self:    self,
		entries: make(map[typingKey]*typingEntry),
	}
}

// SetSelf changes the local user, whose own typing events are ignored.
func (t *TypingTracker) SetSelf(self domain.UserID) {
	t.self = self
}

// Observe records a typing event and reports whether the set of typing users changed.
// isTyping=true (re)schedules the expiry, isTyping=false clears it immediately.
func (t *TypingTracker) Observe(e event.UserTyping, now time.Time) bool {
	if e.Chat == 0 || e.UserID == 0 || e.UserID == t.self {
		return false
	}
	key := typingKey{chat: e.Chat, user: e.UserID}
	entry, exists := t.entries[key]

	if !e.IsTyping {
		if !exists {
			return false
		}
		t.remove(entry)
		return true
	}

	deadline := now.Add(t.ttl)
	if exists {
		entry.deadline = deadline
		heap.Fix(&t.queue, entry.index)
		return false
	}
	entry = &typingEntry{key: key, deadline: deadline}
	t.entries[key] = entry
	heap.Push(&t.queue, entry)
	return true
}

// Expire removes every entry whose deadline is not after now.
func (t *TypingTracker) Expire(now time.Time) bool {
	changed := false
	for len(t.queue) > 0 && !t.queue[0].deadline.After(now) {
		entry := heap.Pop(&t.queue).(*typingEntry)
		delete(t.entries, entry.key)
		changed = true
	}
	return changed
}

// Next returns the earliest pending deadline.
func (t *TypingTracker) Next() (time.Time, bool) {
	if len(t.queue) == 0 {
		return time.Time{}, false
	}
	return t.queue[0].deadline, true
}

// DropChat forgets every indicator of a chat, used when the chat is left.
func (t *TypingTracker) DropChat(chatID domain.ChatID) bool {
	changed := false
	for key, entry := range t.entries {
		if key.chat == chatID {
			t.remove(entry)
			changed = true
		}
	}
	return changed
}

func (t *TypingTracker) Reset() {
	t.entries = make(map[typingKey]*typingEntry)
	t.queue = nil
}

// Users returns the typing users of a chat, sorted.
func (t *TypingTracker) Users(chatID domain.ChatID) []domain.UserID {
	var users []domain.UserID
	for key := range t.entries {
		if key.chat == chatID {
			users = append(users, key.user)
		}
	}
	slices.Sort(users)
	return users
}

// Snapshot returns all typing users grouped by chat.
func (t *TypingTracker) Snapshot() map[domain.ChatID][]domain.UserID {
	out := make(map[domain.ChatID][]domain.UserID)
	for key := range t.entries {
		out[key.chat] = append(out[key.chat], key.user)
	}
	for _, users := range out {
		slices.Sort(users)
	}
	return out
}

func (t *TypingTracker) remove(entry *typingEntry) {
	heap.Remove(&t.queue, entry.index)
	delete(t.entries, entry.key)
}
