package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	row := DefaultMapper("msg:7:"+padded(at.UnixNano())+":0000000000000000042", []byte("{}"))

	req.Equal("7", row.Chat)
	req.Equal("42", row.MessageID)
	req.Equal("2026-03-02 10:00:00", row.Timestamp)
	req.Equal("Size: 2 bytes", row.Detail)

	// Other keys stay raw
	raw := DefaultMapper("idx:7:42", []byte("msg:7"))
	req.Equal("-", raw.Chat)
	req.Equal("idx:7:42", raw.Key)
}

func TestInspectHandler_ListsPrefix(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	// Given two archived messages in different chats
	req.NoError(db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("msg:7:"+padded(1)+":"+padded(1)), []byte(`{"id":1}`)); err != nil {
			return err
		}
		return txn.Set([]byte("msg:8:"+padded(1)+":"+padded(2)), []byte(`{"id":2}`))
	}))
	handler := NewInspectHandler(db, nil, func() map[string]any { return map[string]any{"chats": 2} })

	// When inspecting chat 7 only
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect?prefix=msg:7:", nil))

	// Then only its key is listed, with the stats
	req.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	req.Contains(body, "msg:7:")
	req.NotContains(body, "msg:8:")
	req.Contains(body, "chats: 2")
}

func padded(n int64) string {
	return fmt.Sprintf("%019d", n)
}
