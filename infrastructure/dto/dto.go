// Package dto holds the JSON shapes exchanged with the CRM, over REST and over the socket.
// Domain values never carry json tags: everything crossing the wire is mapped here.
package dto

import (
	"crm-chat/domain"
	"time"

	"github.com/samber/lo"
)

// Envelope wraps every REST response.
type Envelope[T any] struct {
	Data    T      `json:"data"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type Transfer struct {
	FromUserID int64     `json:"fromUserId"`
	ToUserID   int64     `json:"toUserId"`
	At         time.Time `json:"transferredAt"`
}

type Chat struct {
	ID               int64     `json:"id"`
	ProjectID        *int64    `json:"projectId,omitempty"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Transfer         *Transfer `json:"transfer,omitempty"`
	LatestMessage    *Message  `json:"latestMessage,omitempty"`
}

// Message keeps the attachment flat, as the CRM does.
type Message struct {
	ID             int64     `json:"id"`
	ChatID         int64     `json:"chatId"`
	SenderID       int64     `json:"senderId"`
	Message        string    `json:"message"`
	AttachmentURL  string    `json:"attachmentUrl,omitempty"`
	AttachmentType string    `json:"attachmentType,omitempty"`
	AttachmentName string    `json:"attachmentName,omitempty"`
	AttachmentSize int64     `json:"attachmentSize,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Member struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
}

type Participant struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chatId"`
	MemberID   int64     `json:"memberId"`
	MemberType string    `json:"memberType"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Member     *Member   `json:"member,omitempty"`
}

type Employee struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Request bodies.

type PostMessageRequest struct {
	Message        string `json:"message"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
	AttachmentSize int64  `json:"attachmentSize,omitempty"`
}

type CreateChatRequest struct {
	ProjectID *int64  `json:"projectId,omitempty"`
	MemberIDs []int64 `json:"memberIds"`
}

type AddParticipantsRequest struct {
	MemberIDs  []int64 `json:"memberIds"`
	MemberType string  `json:"memberType,omitempty"`
}

type TransferRequest struct {
	ToUserID int64 `json:"toUserId"`
}

func ToChat(c Chat) domain.Chat {
	chat := domain.Chat{
		ID:               domain.ChatID(c.ID),
		ParticipantCount: max(c.ParticipantCount, 0),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.ProjectID != nil {
		chat.ProjectID = lo.ToPtr(domain.ProjectID(*c.ProjectID))
	}
	if c.Transfer != nil {
		chat.Transfer = &domain.Transfer{
			FromUserID: domain.UserID(c.Transfer.FromUserID),
			ToUserID:   domain.UserID(c.Transfer.ToUserID),
			At:         c.Transfer.At,
		}
	}
	if c.LatestMessage != nil {
		latest := ToMessage(*c.LatestMessage)
		if latest.ChatID == 0 {
			latest.ChatID = chat.ID
		}
		chat.LatestMessage = &latest
	}
	return chat
}

func ToMessage(m Message) domain.Message {
	msg := domain.Message{
		ID:        domain.MessageID(m.ID),
		ChatID:    domain.ChatID(m.ChatID),
		SenderID:  domain.UserID(m.SenderID),
		Body:      m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.AttachmentURL != "" {
		msg.Attachment = &domain.Attachment{
			URL:  m.AttachmentURL,
			Type: m.AttachmentType,
			Name: m.AttachmentName,
			Size: m.AttachmentSize,
		}
	}
	return msg
}

func FromMessage(m domain.Message) Message {
	out := Message{
		ID:        int64(m.ID),
		ChatID:    int64(m.ChatID),
		SenderID:  int64(m.SenderID),
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Attachment != nil {
		out.AttachmentURL = m.Attachment.URL
		out.AttachmentType = m.Attachment.Type
		out.AttachmentName = m.Attachment.Name
		out.AttachmentSize = m.Attachment.Size
	}
	return out
}

func ToParticipant(p Participant) domain.Participant {
	participant := domain.Participant{
		ID:         domain.ParticipantID(p.ID),
		ChatID:     domain.ChatID(p.ChatID),
		MemberID:   domain.UserID(p.MemberID),
		MemberType: domain.MemberType(p.MemberType),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if !participant.MemberType.Valid() {
		participant.MemberType = domain.MemberTypeParticipant
	}
	if p.Member != nil {
		participant.Profile = domain.MemberProfile{
			Name:       p.Member.Name,
			Email:      p.Member.Email,
			Avatar:     p.Member.Avatar,
			Department: p.Member.Department,
			Role:       p.Member.Role,
		}
	}
	return participant
}

func ToEmployee(e Employee) domain.Employee {
	return domain.Employee{
		ID:         domain.UserID(e.ID),
		Name:       e.Name,
		Email:      e.Email,
		Avatar:     e.Avatar,
		Department: e.Department,
		Role:       e.Role,
	}
}

func ToProject(p Project) domain.Project {
	return domain.Project{ID: domain.ProjectID(p.ID), Name: p.Name}
}

func ToChats(chats []Chat) []domain.Chat {
	return lo.Map(chats, func(c Chat, _ int) domain.Chat { return ToChat(c) })
}

func ToMessages(messages []Message) []domain.Message {
	return lo.Map(messages, func(m Message, _ int) domain.Message { return ToMessage(m) })
}

func ToParticipants(participants []Participant) []domain.Participant {
	return lo.Map(participants, func(p Participant, _ int) domain.Participant { return ToParticipant(p) })
}

func ToEmployees(employees []Employee) []domain.Employee {
	return lo.Map(employees, func(e Employee, _ int) domain.Employee { return ToEmployee(e) })
}

func ToProjects(projects []Project) []domain.Project {
	return lo.Map(projects, func(p Project, _ int) domain.Project { return ToProject(p) })
}

func int64s[T ~int64](ids []T) []int64 {
	return lo.Map(ids, func(id T, _ int) int64 { return int64(id) })
}
