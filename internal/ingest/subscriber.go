package ingest

import (
	"context"

	"go.uber.org/zap"

	"hearthwatch/internal/alert"
	"hearthwatch/internal/event"
	"hearthwatch/internal/metrics"
	"hearthwatch/pkg/models"
)

// SubscribeAlerts wires the alert engine and dispatcher onto the bus:
// every presence transition is evaluated and any matching rules' webhooks
// are delivered. Returns the unsubscribe functions.
func SubscribeAlerts(bus *event.Bus, engine *alert.Engine, dispatcher *alert.Dispatcher, m *metrics.Metrics, logger *zap.Logger) []func() {
	handler := func(ctx context.Context, ev event.Event) {
		tr, ok := ev.Payload.(models.PresenceLog)
		if !ok {
			logger.Warn("unexpected payload on presence topic",
				zap.String("topic", ev.Topic))
			return
		}

		payloads, err := engine.Evaluate(ctx, tr)
		if err != nil {
			logger.Error("alert evaluation failed",
				zap.String("mac", tr.MACAddress),
				zap.Error(err),
			)
			return
		}
		for _, result := range dispatcher.Dispatch(ctx, payloads) {
			m.WebhookDelivery(result.Success)
		}
	}

	return []func(){
		bus.Subscribe(TopicArrive, handler),
		bus.Subscribe(TopicDepart, handler),
	}
}
