package audio

import (
	"context"
	"log/slog"
	"time"
)

const defaultDrainInterval = 20 * time.Millisecond

// Device is an audio output the sink writes PCM bytes to. In the server it
// is the client connection's binary playback channel.
type Device interface {
	Write(data []byte) error
	Close() error
}

// Sink drains an OutputBuffer to a Device on a short interval. The interval
// trades playback latency against per-write overhead.
type Sink struct {
	buf      *OutputBuffer
	interval time.Duration
	log      *slog.Logger
}

func NewSink(buf *OutputBuffer, interval time.Duration, log *slog.Logger) *Sink {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{buf: buf, interval: interval, log: log}
}

// Run loops until ctx is cancelled, then closes the device. The device is
// closed on every exit path so the handle is never leaked.
func (s *Sink) Run(ctx context.Context, device Device) {
	defer func() {
		if err := device.Close(); err != nil {
			s.log.Error("failed to close output device", "error", err)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data := s.buf.TakeAll()
			if len(data) == 0 {
				continue
			}
			if err := device.Write(data); err != nil {
				s.log.Error("playback write failed", "error", err)
				return
			}
		}
	}
}
