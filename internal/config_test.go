package internal

import (
	"testing"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("CRM_API_URL", "https://crm.example.com/api")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)

	req.NoError(err)
	req.Equal("INFO", config.LogLevel)
	req.Equal(5, config.ReconnectAttempts)
	req.Equal(50, config.MessagePageSize)
	req.Equal("3s", config.TypingTTL.String())
	req.False(config.SendOverSocket)
	req.NoError(config.Validate())
}

func TestConfig_SocketEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    string
		wantErr bool
	}{
		{"explicit", Config{APIURL: "https://crm.example.com", SocketURL: "wss://rt.example.com/socket"}, "wss://rt.example.com/socket", false},
		{"https", Config{APIURL: "https://crm.example.com/api?x=1"}, "wss://crm.example.com/ws", false},
		{"http", Config{APIURL: "http://localhost:8080"}, "ws://localhost:8080/ws", false},
		{"ftp", Config{APIURL: "ftp://crm.example.com"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.SocketEndpoint()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	config := Config{APIURL: "https://crm.example.com", MessagePageSize: 0, SendBufferSize: 1, EventBufferSize: 1}
	req.Error(config.Validate())

	config.MessagePageSize = 10
	req.NoError(config.Validate())

	config.ReconnectAttempts = -1
	req.Error(config.Validate())

	config.ReconnectAttempts = 0
	config.DebugPort = 6060
	req.Error(config.Validate())

	config.HistoryFilepath = "/tmp/chat-history"
	req.NoError(config.Validate())
}
