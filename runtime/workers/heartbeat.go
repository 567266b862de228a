package workers

import (
	"context"
	"crm-chat/contract"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/shirou/gopsutil/process"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	// a buffer this full is about to drop events
	saturationRatio = 0.8
)

type NamedChannel struct {
	Name    string
	Channel any
}

type BufferLevel struct {
	Length   int
	Capacity int
}

func (b BufferLevel) Saturated() bool {
	return b.Capacity > 0 && float64(b.Length) >= saturationRatio*float64(b.Capacity)
}

// Heartbeat is one sample of the session health.
type Heartbeat struct {
	State   contract.ConnState
	Buffers map[string]BufferLevel
	RSS     uint64
	CPU     float64
	Status  string
}

// HeartbeatWorker periodically logs the connection state, how full the
// session buffers are and what the process costs.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with the goroutines using them.
type HeartbeatWorker struct {
	log      *slog.Logger
	state    func() contract.ConnState
	channels []NamedChannel
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, state func() contract.ConnState, channels ...NamedChannel) *HeartbeatWorker {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatWorker{log: log, state: state, channels: channels, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process stats unavailable", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping heartbeat")
			return nil
		case <-ticker.C:
			w.Beat(p)
		}
	}
}

// Beat samples and logs once. p may be nil.
func (w *HeartbeatWorker) Beat(p *process.Process) Heartbeat {
	beat := Heartbeat{State: contract.StateDisconnected, Buffers: make(map[string]BufferLevel, len(w.channels))}
	if w.state != nil {
		beat.State = w.state()
	}
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		beat.Buffers[nc.Name] = BufferLevel{Length: v.Len(), Capacity: v.Cap()}
	}
	if p != nil {
		if rss, cpu, status, err := selfStats(p); err != nil {
			w.log.Debug("Failed to collect self stats", "error", err)
		} else {
			beat.RSS, beat.CPU, beat.Status = rss, cpu, status
		}
	}

	attrs := []any{"state", beat.State, "rss_bytes", beat.RSS, "cpu_percent", beat.CPU}
	saturated := false
	for name, level := range beat.Buffers {
		attrs = append(attrs, name, level.Length)
		saturated = saturated || level.Saturated()
	}
	if saturated {
		w.log.Warn("Session buffers almost full", attrs...)
	} else {
		w.log.Debug("Heartbeat", attrs...)
	}
	return beat
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
