// Package domain contains core concepts of the chat system.
// This file defines Message values and related rules.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the client-side limit on a trimmed message body, in characters.
// The server remains the authority.
const MaxMessageLength = 1000

// Message represents a chat message as delivered by the server.
type Message struct {
	ID         MessageID
	ChatID     ChatID
	SenderID   UserID
	Body       string // may be empty when an attachment is present
	Attachment *Attachment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (m Message) Clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// NormalizeBody trims surrounding whitespace, the form in which bodies are validated and sent.
func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

// BodyLength counts characters rather than bytes.
func BodyLength(body string) int {
	return utf8.RuneCountInString(body)
}
