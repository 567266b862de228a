// Package domain contains core concepts of the chat system.
// Entities here are plain values: the client only ever receives them from
// the server and never shares them by reference across components.
package domain

import (
	"time"
)

type (
	ChatID        int64
	MessageID     int64
	ParticipantID int64
	UserID        int64
	ProjectID     int64
)

// Chat is the list-level view of a conversation.
// ParticipantCount and LatestMessage are denormalized and survive deselection.
type Chat struct {
	ID               ChatID
	ProjectID        *ProjectID
	ParticipantCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Transfer         *Transfer
	LatestMessage    *Message
}

// Transfer records a chat handed over from one member to another.
type Transfer struct {
	FromUserID UserID
	ToUserID   UserID
	At         time.Time
}

// WithLatest returns a copy of the chat whose latest message is msg,
// unless the current latest message is strictly newer.
func (c Chat) WithLatest(msg Message) Chat {
	if c.LatestMessage != nil && c.LatestMessage.CreatedAt.After(msg.CreatedAt) {
		return c
	}
	latest := msg.Clone()
	c.LatestMessage = &latest
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}
	return c
}

// Clone returns a copy that shares no pointers with c.
func (c Chat) Clone() Chat {
	if c.ProjectID != nil {
		p := *c.ProjectID
		c.ProjectID = &p
	}
	if c.Transfer != nil {
		t := *c.Transfer
		c.Transfer = &t
	}
	if c.LatestMessage != nil {
		m := c.LatestMessage.Clone()
		c.LatestMessage = &m
	}
	return c
}
