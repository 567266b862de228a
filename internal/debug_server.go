package internal

import (
	"context"
	"crm-chat/errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	defaultInspectPrefix = "msg:"
	maxInspectRows       = 500
)

var inspectTemplate = template.Must(template.New("inspect").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>chat archive</title></head>
<body>
<form method="get"><input name="prefix" value="{{.Prefix}}"><button>inspect</button></form>
{{if .Stats}}<ul>{{range $k, $v := .Stats}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>{{end}}
<table border="1" cellpadding="4">
<tr><th>chat</th><th>time</th><th>message</th><th>detail</th><th>key</th></tr>
{{range .Items}}<tr><td>{{.Chat}}</td><td>{{.Timestamp}}</td><td>{{.MessageID}}</td><td>{{.Detail}}</td><td><code>{{.Key}}</code></td></tr>
{{end}}</table>
</body>
</html>`))

// InspectRow is one archive entry as shown by the inspector.
type InspectRow struct {
	Key       string
	Chat      string
	Timestamp string
	MessageID string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// NewInspectHandler lists the archive keys under ?prefix=, msg: by default.
func NewInspectHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider) http.Handler {
	if mapper == nil {
		mapper = DefaultMapper
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultInspectPrefix
		}
		data := PageData{Prefix: prefix, Stats: make(map[string]any)}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < maxInspectRows; it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(key, val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = inspectTemplate.Execute(w, data)
	})
}

// StartDebugServer serves the archive inspector on localhost until ctx is done.
func StartDebugServer(ctx context.Context, log *slog.Logger, db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	mux.Handle("/inspect", NewInspectHandler(db, mapper, statsProvider))
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info("Archive inspector listening", "url", fmt.Sprintf("http://%s/inspect", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Archive inspector stopped", "error", err)
		}
	}()
}

// DefaultMapper reads msg:{chat}:{unixnano}:{id} keys, leaving other keys raw.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Chat:      "-",
		Timestamp: "--:--:--",
		MessageID: "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	if len(parts) == 4 && parts[0] == "msg" {
		row.Chat = parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("2006-01-02 15:04:05")
		}
		row.MessageID = strings.TrimLeft(parts[3], "0")
	}
	return row
}
