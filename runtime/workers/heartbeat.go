package workers

import (
	"context"
	"log/slog"
	"time"
)

// Pinger checks the peer is still alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatWorker pings a peer periodically. The first failed ping reports the
// peer as lost through onLost and ends the worker.
type HeartbeatWorker struct {
	log      *slog.Logger
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	onLost   func(error)
}

func NewHeartbeatWorker(log *slog.Logger, pinger Pinger, interval, timeout time.Duration, onLost func(error)) *HeartbeatWorker {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &HeartbeatWorker{log: log, pinger: pinger, interval: interval, timeout: timeout, onLost: onLost}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, w.timeout)
			err := w.pinger.Ping(pingCtx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("Peer unreachable for heartbeat", "error", err)
			w.onLost(err)
			return nil
		}
	}
}
