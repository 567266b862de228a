package workers

import (
	"context"
	"crm-chat/contract"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatWorker_Beat(t *testing.T) {
	req := require.New(t)
	events := make(chan int, 5)
	for i := range 4 {
		events <- i
	}
	updates := make(chan struct{}, 1)

	// Given a nearly full event buffer, an empty one and something that is not a channel
	worker := NewHeartbeatWorker(slog.Default(), time.Minute,
		func() contract.ConnState { return contract.StateDegraded },
		NamedChannel{Name: "events", Channel: events},
		NamedChannel{Name: "updates", Channel: updates},
		NamedChannel{Name: "broken", Channel: 42},
	)

	// When sampling without process stats
	beat := worker.Beat(nil)

	// Then buffer levels and state are reported
	req.Equal(contract.StateDegraded, beat.State)
	req.Equal(BufferLevel{Length: 4, Capacity: 5}, beat.Buffers["events"])
	req.True(beat.Buffers["events"].Saturated())
	req.False(beat.Buffers["updates"].Saturated())
	req.NotContains(beat.Buffers, "broken")
	req.Zero(beat.RSS)
	req.Len(events, 4)
}

func TestHeartbeatWorker_StopsWithContext(t *testing.T) {
	req := require.New(t)
	worker := NewHeartbeatWorker(slog.Default(), time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req.NoError(worker.Run(ctx))
}
