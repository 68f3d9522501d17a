package daemon

import (
	"context"
	"time"

	"github.com/harun/kodok/internal/observability"
)

const statsInterval = 30 * time.Second

// EventLoop runs periodic maintenance while the daemon is up
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: statsInterval,
	}
}

// Run refreshes gauges and logs engine stats until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

func (e *EventLoop) processTasks() {
	sessions := e.daemon.store.Len()
	depth := e.daemon.queue.Len()

	observability.SetActiveSessions(sessions)
	observability.SetDispatchQueueDepth(depth)

	if sessions > 0 || depth > 0 {
		e.daemon.logger.Debug().
			Int("sessions", sessions).
			Int("queue_depth", depth).
			Msg("Engine stats")
	}
}
