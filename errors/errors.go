package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Validation, rejected before any network call
	ErrInvalidCommand        = fmt.Errorf("invalid command")
	ErrMessageTooLong        = fmt.Errorf("message is too long")
	ErrEmptyMessage          = fmt.Errorf("message is empty")
	ErrNoParticipantSelected = fmt.Errorf("no participant selected")
	ErrNoChatSelected        = fmt.Errorf("no chat selected")

	// Transport
	ErrNotConnected      = fmt.Errorf("transport is not connected")
	ErrTransportDegraded = fmt.Errorf("transport is degraded")
	ErrSendBufferFull    = fmt.Errorf("outbound buffer is full")
	ErrChatUnavailable   = fmt.Errorf("chat is unavailable without credentials")

	// REST
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrRequestFailed   = fmt.Errorf("request failed")
	ErrRequestRejected = fmt.Errorf("request rejected by server")

	// Reconciliation
	ErrStaleSelection = fmt.Errorf("selection changed while loading")
	ErrMalformedEvent = fmt.Errorf("malformed event")
	ErrUnknownEvent   = fmt.Errorf("unknown event")
	ErrStoreStopped   = fmt.Errorf("store is not running")

	ErrInvalidToken = fmt.Errorf("invalid token")
)

func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

func As(err error, target any) bool {
	return goerrors.As(err, target)
}
