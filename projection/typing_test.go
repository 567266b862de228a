package projection

import (
	"crm-chat/domain"
	"crm-chat/domain/event"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingTracker_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(3*time.Second, 1)

	// Given user 5 starts typing at T
	req.True(tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: true}, base))
	req.Equal([]domain.UserID{5}, tracker.Users(7))

	// When no renewal arrives
	req.False(tracker.Expire(base.Add(2999 * time.Millisecond)))
	req.Equal([]domain.UserID{5}, tracker.Users(7))

	// Then the indicator is gone at T+3s
	req.True(tracker.Expire(base.Add(3 * time.Second)))
	req.Empty(tracker.Users(7))
	_, pending := tracker.Next()
	req.False(pending)
}

func TestTypingTracker_RenewalReschedules(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(3*time.Second, 1)

	req.True(tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: true}, base))
	req.False(tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: true}, base.Add(2*time.Second)))

	next, ok := tracker.Next()
	req.True(ok)
	req.Equal(base.Add(5*time.Second), next)

	req.False(tracker.Expire(base.Add(4 * time.Second)))
	req.True(tracker.Expire(base.Add(5 * time.Second)))
}

func TestTypingTracker_StopClearsImmediately(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(0, 1)

	tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: true}, base)
	tracker.Observe(event.UserTyping{Chat: 7, UserID: 6, IsTyping: true}, base)

	req.True(tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: false}, base.Add(time.Second)))
	req.False(tracker.Observe(event.UserTyping{Chat: 7, UserID: 5, IsTyping: false}, base.Add(time.Second)))
	req.Equal([]domain.UserID{6}, tracker.Users(7))

	next, ok := tracker.Next()
	req.True(ok)
	req.Equal(base.Add(DefaultTypingTTL), next)
}

func TestTypingTracker_IgnoresSelf(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(time.Second, 1)

	req.False(tracker.Observe(event.UserTyping{Chat: 7, UserID: 1, IsTyping: true}, base))
	req.Empty(tracker.Users(7))

	tracker.SetSelf(2)
	req.True(tracker.Observe(event.UserTyping{Chat: 7, UserID: 1, IsTyping: true}, base))
}

func TestTypingTracker_PerChatAndDrop(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(time.Second, 1)

	tracker.Observe(event.UserTyping{Chat: 7, UserID: 9, IsTyping: true}, base)
	tracker.Observe(event.UserTyping{Chat: 7, UserID: 4, IsTyping: true}, base)
	tracker.Observe(event.UserTyping{Chat: 8, UserID: 4, IsTyping: true}, base)

	req.Equal(map[domain.ChatID][]domain.UserID{7: {4, 9}, 8: {4}}, tracker.Snapshot())

	req.True(tracker.DropChat(7))
	req.False(tracker.DropChat(7))
	req.Equal(map[domain.ChatID][]domain.UserID{8: {4}}, tracker.Snapshot())

	tracker.Reset()
	req.Empty(tracker.Snapshot())
}
