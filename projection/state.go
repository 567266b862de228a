package projection

import (
	"crm-chat/domain"
	"slices"

	"github.com/samber/lo"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Thread is the hydrated content of one chat.
type Thread struct {
	Chat         domain.ChatID
	Messages     []domain.Message // non-decreasing CreatedAt, ties in arrival order
	Participants []domain.Participant
}

// State is the reconciled view exposed to the presentation layer.
// While Loading or Failed, Thread may still hold the previously hydrated chat.
type State struct {
	Chats  []domain.Chat
	Active domain.ChatID
	Phase  Phase
	Thread Thread
	Typing map[domain.ChatID][]domain.UserID
	Online []domain.UserID // sorted, insert only
	Err    error
}

func NewState() State {
	return State{Phase: PhaseIdle}
}

// Hydrated reports whether the thread currently holds chatID's content.
func (s State) Hydrated(chatID domain.ChatID) bool {
	return chatID != 0 && s.Thread.Chat == chatID
}

func (s State) Chat(chatID domain.ChatID) (domain.Chat, bool) {
	return lo.Find(s.Chats, func(c domain.Chat) bool { return c.ID == chatID })
}

// ParticipantCount returns the list-level count of a chat, zero when the chat is unknown.
func (s State) ParticipantCount(chatID domain.ChatID) int {
	c, _ := s.Chat(chatID)
	return c.ParticipantCount
}

// IsOnline reports whether a presence event has been seen for the user.
func (s State) IsOnline(userID domain.UserID) bool {
	_, found := slices.BinarySearch(s.Online, userID)
	return found
}

// Clone returns a deep copy sharing no backing arrays with s.
func (s State) Clone() State {
	c := s
	c.Chats = lo.Map(s.Chats, func(item domain.Chat, _ int) domain.Chat { return item.Clone() })
	c.Thread = s.Thread.Clone()
	c.Online = slices.Clone(s.Online)
	if s.Typing != nil {
		c.Typing = make(map[domain.ChatID][]domain.UserID, len(s.Typing))
		for id, users := range s.Typing {
			c.Typing[id] = slices.Clone(users)
		}
	}
	return c
}

func (t Thread) Clone() Thread {
	return Thread{
		Chat:         t.Chat,
		Messages:     lo.Map(t.Messages, func(m domain.Message, _ int) domain.Message { return m.Clone() }),
		Participants: slices.Clone(t.Participants),
	}
}
