package sink

import (
	"context"
	"crm-chat/domain/event"
	"log/slog"
)

// LogSink writes one structured line per reconciled event.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (l LogSink) Consume(ctx context.Context, e event.DomainEvent) error {
	attrs := []any{"event", e.Name(), "chat_id", e.ChatID()}
	switch evt := e.(type) {
	case event.NewMessage:
		attrs = append(attrs, "message_id", evt.Message.ID, "sender_id", evt.Message.SenderID)
	case event.MessageUpdated:
		attrs = append(attrs, "message_id", evt.Message.ID)
	case event.MessageDeleted:
		attrs = append(attrs, "message_id", evt.MessageID)
	case event.ParticipantAdded:
		attrs = append(attrs, "participant_id", evt.Participant.ID)
	case event.ParticipantRemoved:
		attrs = append(attrs, "participant_id", evt.ParticipantID)
	case event.SnapshotLoaded:
		attrs = append(attrs, "messages", len(evt.Messages), "participants", len(evt.Participants))
	}
	l.log.DebugContext(ctx, "Event reconciled", attrs...)
	return nil
}
