package internal

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	APIURL            string        `env:"CRM_API_URL,required=true"`
	SocketURL         string        `env:"CRM_SOCKET_URL"`
	AuthToken         string        `env:"CRM_AUTH_TOKEN"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=15s"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS,default=5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY,default=2s"`
	TypingTTL         time.Duration `env:"TYPING_TTL,default=3s"`
	MessagePageSize   int           `env:"MESSAGE_PAGE_SIZE,default=50"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=64"`
	AckTimeout        time.Duration `env:"ACK_TIMEOUT,default=30s"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE,default=256"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HistoryFilepath   string        `env:"HISTORY_FILEPATH"`
	DebugPort         int           `env:"DEBUG_PORT"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	ChatID            int64         `env:"CHAT_ID"`
	SendOverSocket    bool          `env:"SEND_OVER_SOCKET,default=false"`
}

// SocketEndpoint returns CRM_SOCKET_URL, or the API origin with a ws scheme and the /ws path.
func (c Config) SocketEndpoint() (string, error) {
	if c.SocketURL != "" {
		return c.SocketURL, nil
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", fmt.Errorf("CRM_API_URL is not a valid url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("CRM_API_URL must be http or https, got %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func (c Config) Validate() error {
	if c.MessagePageSize <= 0 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be positive, got %d", c.MessagePageSize)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("RECONNECT_ATTEMPTS must not be negative, got %d", c.ReconnectAttempts)
	}
	if c.SendBufferSize <= 0 || c.EventBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE and EVENT_BUFFER_SIZE must be positive")
	}
	if c.DebugPort != 0 && c.HistoryFilepath == "" {
		return fmt.Errorf("DEBUG_PORT inspects the archive and needs HISTORY_FILEPATH")
	}
	_, err := c.SocketEndpoint()
	return err
}
