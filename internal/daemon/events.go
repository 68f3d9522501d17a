package daemon

import (
	"context"
	"time"

	"github.com/harun/kodok/internal/router"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/harun/kodok/pkg/facts"
	"github.com/harun/kodok/pkg/gateway"
)

// onRouted forwards routing outcomes to gateway stream clients.
func (d *Daemon) onRouted(ctx context.Context, ev router.Event, route router.Route, err error) {
	if d.gatewayServer == nil {
		return
	}

	data := map[string]interface{}{
		"route":          string(route),
		"kind":           string(ev.Kind),
		"participant_id": ev.ParticipantID,
		"channel_id":     ev.ChannelID,
		"addressed":      ev.Addressed,
		"text_length":    len(ev.Text),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	d.gatewayServer.Publish(ctx, gateway.EventRouted, data)
}

// onDelivery forwards dispatch outcomes to gateway stream clients.
func (d *Daemon) onDelivery(item dispatch.Item, outcome dispatch.Outcome, err error) {
	if d.gatewayServer == nil {
		return
	}

	data := map[string]interface{}{
		"destination": item.Destination,
		"outcome":     string(outcome),
		"waited_ms":   time.Since(item.EnqueuedAt).Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	d.gatewayServer.Publish(context.Background(), gateway.EventDelivery, data)
}

func (d *Daemon) onQuestionsImported(file facts.QuestionFile) {
	d.logger.Info().
		Int("added", len(file.Questions)).
		Int("used", len(file.UsedQuestions)).
		Msg("Questions imported")

	if d.gatewayServer != nil {
		d.gatewayServer.Publish(context.Background(), gateway.EventImport, map[string]interface{}{
			"added": len(file.Questions),
			"used":  len(file.UsedQuestions),
		})
	}
}
