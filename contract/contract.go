//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives every event the store has applied, after the fact.
// Sinks are side effects (archive, logs); they never feed back into the state.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// SnapshotLoader is the pull side: stateless reads returning immutable snapshots.
type SnapshotLoader interface {
	ListChats(ctx context.Context) ([]domain.Chat, error)
	ListMessages(ctx context.Context, chatID domain.ChatID, page domain.Page) ([]domain.Message, error)
	ListParticipants(ctx context.Context, chatID domain.ChatID) ([]domain.Participant, error)
}

// CommandGateway triggers server-side effects.
// Its responses are never applied to the state: the re-broadcast event is.
type CommandGateway interface {
	PostMessage(ctx context.Context, cmd chat.SendMessageCommand) error
	AddParticipants(ctx context.Context, cmd chat.AddParticipantsCommand) error
	RemoveParticipant(ctx context.Context, cmd chat.RemoveParticipantCommand) error
	TransferChat(ctx context.Context, cmd chat.TransferChatCommand) error
}

// Directory holds lookups that are not part of the reconciliation core.
type Directory interface {
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error)
	CreateChat(ctx context.Context, cmd chat.CreateChatCommand) (domain.Chat, error)
	AvailableEmployees(ctx context.Context, chatID domain.ChatID) ([]domain.Employee, error)
	AvailableProjects(ctx context.Context) ([]domain.Project, error)
}

// Handler receives the raw payload of a live event. It runs synchronously on delivery.
type Handler func(payload []byte)

// AckFunc receives the server acknowledgement of an emit. Diagnostics only.
type AckFunc func(payload []byte)

type SubscriptionID string

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDegraded     ConnState = "degraded"
)

// Emitter is the fire-and-forget half of the transport, at-most-once.
type Emitter interface {
	JoinRoom(chatID domain.ChatID, ack AckFunc) error
	LeaveRoom(chatID domain.ChatID, ack AckFunc) error
	Emit(kind event.Name, payload any, ack AckFunc) error
}

type Transport interface {
	Emitter
	Connect(ctx context.Context, token string) error
	Disconnect()
	Subscribe(name event.Name, handler Handler) SubscriptionID
	Unsubscribe(name event.Name, id SubscriptionID)
	State() ConnState
}

type IHistoryRepository interface {
	StoreMessages(messages ...domain.Message) error
	DeleteMessage(chatID domain.ChatID, messageID domain.MessageID) error
	GetMessages(chatID domain.ChatID, limit int) ([]domain.Message, error)
}
