package storage

import (
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/infrastructure/dto"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

var _ contract.IHistoryRepository = MessageRepository{}

// MessageRepository archives the reconciled thread locally.
// It is a read-side convenience: the server stays the source of truth.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// messageKey is "msg:{chat}:{created_at_padded}:{id}".
// The 19-digit padding keeps lexicographic order chronological, the id breaks ties.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%019d", m.ChatID, m.CreatedAt.UnixNano(), m.ID))
}

// indexKey points from a message id to its current message key.
func indexKey(chatID domain.ChatID, messageID domain.MessageID) []byte {
	return []byte(fmt.Sprintf("idx:%d:%d", chatID, messageID))
}

func messagePrefix(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("msg:%d:", chatID))
}

// StoreMessages upserts messages. An edit replaces the archived copy even when
// its creation time moved.
func (m MessageRepository) StoreMessages(messages ...domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return m.db.Update(func(txn *badger.Txn) error {
		for _, msg := range messages {
			if msg.ID == 0 || msg.ChatID == 0 {
				m.log.Debug("Skipping message without identity", "message_id", msg.ID, "chat_id", msg.ChatID)
				continue
			}
			value, err := json.Marshal(dto.FromMessage(msg))
			if err != nil {
				return err
			}
			if err := deleteIndexed(txn, msg.ChatID, msg.ID); err != nil {
				return err
			}
			key := messageKey(msg)
			if err := txn.Set(key, value); err != nil {
				return err
			}
			if err := txn.Set(indexKey(msg.ChatID, msg.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m MessageRepository) DeleteMessage(chatID domain.ChatID, messageID domain.MessageID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return deleteIndexed(txn, chatID, messageID)
	})
}

func deleteIndexed(txn *badger.Txn, chatID domain.ChatID, messageID domain.MessageID) error {
	idx := indexKey(chatID, messageID)
	item, err := txn.Get(idx)
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Delete(idx)
}

// GetMessages returns up to limit of the newest archived messages of a chat,
// in chronological order. A non-positive limit returns everything.
func (m MessageRepository) GetMessages(chatID domain.ChatID, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var stored dto.Message
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				messages = append(messages, dto.ToMessage(stored))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// newest first from the iterator
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
