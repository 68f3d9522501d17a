package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/kodok/internal/tracing"
	"github.com/rs/zerolog"
)

// EventBroadcaster fans events out to every connected client
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all clients
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	b.Publish(context.Background(), event, data)
}

// Publish is Broadcast tagged with the trace id carried by ctx.
func (b *EventBroadcaster) Publish(ctx context.Context, event string, data interface{}) {
	b.broadcastMessage(EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       b.nextSeq(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		TraceID:   tracing.GetTraceID(ctx),
	})
}

// broadcastMessage writes msg to every client. A client that cannot keep up
// is dropped; its reader goroutine notices the closed socket and exits.
func (b *EventBroadcaster) broadcastMessage(msg EventMessage) {
	clients := b.clients.GetAll()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	dropped := 0
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Msg("Dropping client after failed write")
			b.clients.Remove(client.ID)
			_ = client.Conn.Close()
			dropped++
		}
	}

	if dropped > 0 || msg.Event != EventTick {
		b.logger.Debug().
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Int("delivered", len(clients)-dropped).
			Int("dropped", dropped).
			Msg("Event published")
	}
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
