package main

import (
	"context"
	"crm-chat/auth"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/errors"
	"crm-chat/infrastructure/dto"
	"crm-chat/infrastructure/rest"
	"crm-chat/infrastructure/storage"
	"crm-chat/infrastructure/ws"
	"crm-chat/internal"
	"crm-chat/runtime"
	"crm-chat/runtime/workers"
	"crm-chat/services"
	"crm-chat/sink"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatcli terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the session and keeps every defer executed before exiting.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	endpoint, err := config.SocketEndpoint()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional local archive (BadgerDB)
	sinks := []contract.EventSink{sink.NewLogSink(log)}
	var history contract.IHistoryRepository
	if config.HistoryFilepath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.HistoryFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("history archive opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing history archive...")
			_ = db.Close()
		}()
		repository := storage.NewMessageRepository(db, log)
		history = repository
		sinks = append(sinks, sink.NewHistorySink(repository, log))
		if config.DebugPort != 0 {
			internal.StartDebugServer(ctx, log, db, config.DebugPort, messageMapper, nil)
		}
	}

	// 3. Pull side, push side and the reconciled state
	tokens := auth.NewTokenSource()
	client := rest.NewClient(log, config.APIURL, config.HTTPTimeout, tokens)
	store := runtime.NewStore(log, client, client, runtime.StoreOptions{
		PageSize:    config.MessagePageSize,
		TypingTTL:   config.TypingTTL,
		EventBuffer: config.EventBufferSize,
		SocketSends: config.SendOverSocket,
	})
	session := runtime.NewSession(log, store, tokens, func() contract.Transport {
		return ws.NewTransport(log, ws.Options{
			URL:               endpoint,
			ReconnectAttempts: config.ReconnectAttempts,
			ReconnectDelay:    config.ReconnectDelay,
			SendBufferSize:    config.SendBufferSize,
			AckTimeout:        config.AckTimeout,
		})
	})
	service := services.NewChatService(session, store, client, history)

	// 4. Supervision, outliving ctx so that sign-out still reaches the store
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		store,
		workers.NewEventFanout(log, store.Events(), config.SinkTimeout, sinks...),
		workers.NewHeartbeatWorker(log, config.HeartbeatInterval, session.State,
			workers.NamedChannel{Name: "events", Channel: store.Events()},
			workers.NamedChannel{Name: "updates", Channel: store.Updates()},
		),
	)
	supervised := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(supervised)
	}()
	defer func() {
		sup.Stop()
		<-supervised
	}()

	// 5. Session
	defer func() {
		signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := service.SignOut(signOutCtx); err != nil {
			log.Warn("Sign-out incomplete", "error", err)
		}
	}()
	creds, err := service.SignIn(ctx, config.AuthToken)
	switch {
	case errors.Is(err, errors.ErrInvalidToken):
		return exitConfig, fmt.Errorf("CRM_AUTH_TOKEN: %w", err)
	case err != nil:
		log.Warn("Signed in with errors, /reload to retry", "error", err)
	case creds.Token == "":
		fmt.Println("CRM_AUTH_TOKEN is not set, chat is unavailable.")
		return exitOK, nil
	}

	console := NewConsole(os.Stdin, os.Stdout, service, creds.UserID)
	if config.ChatID != 0 {
		console.Open(ctx, domain.ChatID(config.ChatID))
	}
	if err := console.Run(ctx); err != nil {
		return exitRuntime, err
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// messageMapper shows archived message bodies in the inspector.
func messageMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	var message dto.Message
	if err := json.Unmarshal(val, &message); err != nil {
		return row
	}
	row.Detail = message.Message
	if message.AttachmentName != "" {
		row.Detail += fmt.Sprintf(" [%s]", message.AttachmentName)
	}
	return row
}
