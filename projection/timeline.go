// Package projection builds the local chat view from observed events.
// Handles ordering, deduplication, and participant counts.
// Functions here are pure: they never mutate their input, emit events or do I/O.
package projection

import (
	"crm-chat/domain"
	"crm-chat/domain/event"
	"slices"

	"github.com/samber/lo"
)

type Outcome int

const (
	// Applied means the state changed.
	Applied Outcome = iota
	// Ignored means the event was valid but had nothing to change (duplicate, unknown id, no-op event).
	Ignored
	// Dropped means the event was malformed.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	default:
		return "dropped"
	}
}

// Apply merges one live event into s and returns the new state.
// Typing events are not handled here: their expiry is time-driven, see TypingTracker.
func Apply(s State, e event.DomainEvent) (State, Outcome) {
	if e == nil || e.ChatID() == 0 {
		return s, Dropped
	}
	switch evt := e.(type) {
	case event.NewMessage:
		return applyNewMessage(s, evt)
	case event.MessageUpdated:
		return applyMessageUpdated(s, evt)
	case event.MessageDeleted:
		return applyMessageDeleted(s, evt)
	case event.ParticipantAdded:
		return applyParticipantAdded(s, evt)
	case event.ParticipantRemoved:
		return applyParticipantRemoved(s, evt)
	case event.UserOnline:
		return applyUserOnline(s, evt)
	case event.UserJoined, event.UserLeft:
		// participants only change through participantAdded/participantRemoved
		return s, Ignored
	default:
		return s, Ignored
	}
}

// Hydrate makes a REST snapshot the canonical thread of chatID.
// Duplicated ids keep their first occurrence and messages are sorted like live ones.
func Hydrate(s State, chatID domain.ChatID, messages []domain.Message, participants []domain.Participant) State {
	msgs := lo.UniqBy(lo.Map(messages, func(m domain.Message, _ int) domain.Message {
		m = m.Clone()
		if m.ChatID == 0 {
			m.ChatID = chatID
		}
		return m
	}), func(m domain.Message) domain.MessageID { return m.ID })
	sortMessages(msgs)

	s.Thread = Thread{
		Chat:         chatID,
		Messages:     msgs,
		Participants: lo.UniqBy(slices.Clone(participants), func(p domain.Participant) domain.ParticipantID { return p.ID }),
	}
	return s
}

func sortMessages(messages []domain.Message) {
	slices.SortStableFunc(messages, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func normalizeMessage(chatID domain.ChatID, m domain.Message) (domain.Message, bool) {
	if m.ID == 0 {
		return m, false
	}
	if m.ChatID == 0 {
		m.ChatID = chatID
	}
	return m.Clone(), m.ChatID == chatID
}

func applyNewMessage(s State, e event.NewMessage) (State, Outcome) {
	msg, ok := normalizeMessage(e.Chat, e.Message)
	if !ok {
		return s, Dropped
	}
	hydrated := s.Hydrated(e.Chat)
	if hydrated && slices.ContainsFunc(s.Thread.Messages, func(m domain.Message) bool { return m.ID == msg.ID }) {
		return s, Ignored
	}
	outcome := Ignored

	if idx := chatIndex(s, e.Chat); idx >= 0 {
		if latest := s.Chats[idx].LatestMessage; latest == nil || latest.ID != msg.ID {
			updated := s.Chats[idx].WithLatest(msg)
			if updated.LatestMessage != latest {
				s.Chats = replaceChat(s.Chats, idx, updated)
				outcome = Applied
			}
		}
	}

	if !hydrated {
		return s, outcome
	}
	messages := append(slices.Clone(s.Thread.Messages), msg)
	sortMessages(messages)
	s.Thread.Messages = messages
	return s, Applied
}

func applyMessageUpdated(s State, e event.MessageUpdated) (State, Outcome) {
	msg, ok := normalizeMessage(e.Chat, e.Message)
	if !ok {
		return s, Dropped
	}
	outcome := Ignored

	if idx := chatIndex(s, e.Chat); idx >= 0 {
		if latest := s.Chats[idx].LatestMessage; latest != nil && latest.ID == msg.ID {
			updated := s.Chats[idx].Clone()
			updated.LatestMessage = &msg
			s.Chats = replaceChat(s.Chats, idx, updated)
			outcome = Applied
		}
	}

	if !s.Hydrated(e.Chat) {
		return s, outcome
	}
	pos := slices.IndexFunc(s.Thread.Messages, func(m domain.Message) bool { return m.ID == msg.ID })
	if pos < 0 {
		return s, outcome
	}
	messages := slices.Clone(s.Thread.Messages)
	messages[pos] = msg
	s.Thread.Messages = messages
	return s, Applied
}

func applyMessageDeleted(s State, e event.MessageDeleted) (State, Outcome) {
	if e.MessageID == 0 {
		return s, Dropped
	}
	outcome := Ignored

	if s.Hydrated(e.Chat) {
		pos := slices.IndexFunc(s.Thread.Messages, func(m domain.Message) bool { return m.ID == e.MessageID })
		if pos >= 0 {
			s.Thread.Messages = slices.Delete(slices.Clone(s.Thread.Messages), pos, pos+1)
			outcome = Applied
		}
	}

	// The list preview can only fall back on a known message when the thread is hydrated.
	if idx := chatIndex(s, e.Chat); idx >= 0 && s.Hydrated(e.Chat) {
		if latest := s.Chats[idx].LatestMessage; latest != nil && latest.ID == e.MessageID {
			updated := s.Chats[idx].Clone()
			updated.LatestMessage = nil
			if n := len(s.Thread.Messages); n > 0 {
				last := s.Thread.Messages[n-1].Clone()
				updated.LatestMessage = &last
			}
			s.Chats = replaceChat(s.Chats, idx, updated)
			outcome = Applied
		}
	}
	return s, outcome
}

func applyParticipantAdded(s State, e event.ParticipantAdded) (State, Outcome) {
	p := e.Participant
	if p.ID == 0 || (p.ChatID != 0 && p.ChatID != e.Chat) {
		return s, Dropped
	}
	if p.ChatID == 0 {
		p.ChatID = e.Chat
	}

	if s.Hydrated(e.Chat) {
		if slices.ContainsFunc(s.Thread.Participants, func(known domain.Participant) bool { return known.ID == p.ID }) {
			// Duplicate: only an authoritative count may still correct the list.
			return setCount(s, e.Chat, e.ParticipantCount, func(int) (int, bool) { return 0, false })
		}
		s.Thread.Participants = append(slices.Clone(s.Thread.Participants), p)
	}

	next, outcome := setCount(s, e.Chat, e.ParticipantCount, func(n int) (int, bool) { return n + 1, true })
	if s.Hydrated(e.Chat) {
		outcome = Applied
	}
	return next, outcome
}

func applyParticipantRemoved(s State, e event.ParticipantRemoved) (State, Outcome) {
	if e.ParticipantID == 0 {
		return s, Dropped
	}
	removed := false
	if s.Hydrated(e.Chat) {
		pos := slices.IndexFunc(s.Thread.Participants, func(p domain.Participant) bool { return p.ID == e.ParticipantID })
		if pos >= 0 {
			s.Thread.Participants = slices.Delete(slices.Clone(s.Thread.Participants), pos, pos+1)
			removed = true
		}
	}

	next, outcome := setCount(s, e.Chat, e.ParticipantCount, func(n int) (int, bool) { return max(n-1, 0), true })
	if removed {
		outcome = Applied
	}
	return next, outcome
}

// setCount writes the authoritative count when present, otherwise the local fallback.
func setCount(s State, chatID domain.ChatID, authoritative *int, fallback func(int) (int, bool)) (State, Outcome) {
	idx := chatIndex(s, chatID)
	if idx < 0 {
		return s, Ignored
	}
	current := s.Chats[idx].ParticipantCount
	next, ok := current, false
	if authoritative != nil {
		next, ok = max(*authoritative, 0), true
	} else {
		next, ok = fallback(current)
	}
	if !ok || next == current {
		return s, Ignored
	}
	updated := s.Chats[idx].Clone()
	updated.ParticipantCount = next
	s.Chats = replaceChat(s.Chats, idx, updated)
	return s, Applied
}

func applyUserOnline(s State, e event.UserOnline) (State, Outcome) {
	if e.UserID == 0 {
		return s, Dropped
	}
	pos, found := slices.BinarySearch(s.Online, e.UserID)
	if found {
		return s, Ignored
	}
	s.Online = slices.Insert(slices.Clone(s.Online), pos, e.UserID)
	return s, Applied
}

func chatIndex(s State, chatID domain.ChatID) int {
	return slices.IndexFunc(s.Chats, func(c domain.Chat) bool { return c.ID == chatID })
}

func replaceChat(chats []domain.Chat, idx int, chat domain.Chat) []domain.Chat {
	out := slices.Clone(chats)
	out[idx] = chat
	return out
}
