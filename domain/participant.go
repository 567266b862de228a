// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

type MemberType string

const (
	MemberTypeOwner       MemberType = "owner"
	MemberTypeParticipant MemberType = "participant"
)

func (t MemberType) Valid() bool {
	return t == MemberTypeOwner || t == MemberTypeParticipant
}

// MemberProfile is denormalized from the directory for display purposes.
type MemberProfile struct {
	Name       string
	Email      string
	Avatar     string
	Department string
	Role       string
}

// Participant links a member to a chat.
// It only exists client-side once the server has confirmed it through an event or a snapshot.
type Participant struct {
	ID         ParticipantID
	ChatID     ChatID
	MemberID   UserID
	MemberType MemberType
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Profile    MemberProfile
}
