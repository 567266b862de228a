package sink

import (
	"context"
	"crm-chat/contract"
	"crm-chat/domain/event"
	"log/slog"
)

// HistorySink mirrors the reconciled thread into the local archive.
type HistorySink struct {
	repository contract.IHistoryRepository
	log        *slog.Logger
}

func NewHistorySink(repository contract.IHistoryRepository, log *slog.Logger) HistorySink {
	return HistorySink{repository: repository, log: log}
}

func (h HistorySink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.NewMessage:
		return h.repository.StoreMessages(evt.Message)
	case event.MessageUpdated:
		return h.repository.StoreMessages(evt.Message)
	case event.MessageDeleted:
		return h.repository.DeleteMessage(evt.Chat, evt.MessageID)
	case event.SnapshotLoaded:
		return h.repository.StoreMessages(evt.Messages...)
	default:
		h.log.Debug("Not archived", "event", e.Name())
		return nil
	}
}
