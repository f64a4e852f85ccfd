// Package ingest ties the pipeline together: sniffer callbacks land here,
// get folded into the registry, and any resulting presence transitions are
// published on the event bus for the alert and metrics subscribers.
package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"hearthwatch/internal/event"
	"hearthwatch/internal/metrics"
	"hearthwatch/internal/registry"
	"hearthwatch/internal/sniffer"
	"hearthwatch/pkg/models"
)

// Bus topics for presence transitions. The payload is a models.PresenceLog.
const (
	TopicArrive = "presence.device.arrive"
	TopicDepart = "presence.device.depart"
)

// Ingestor is the single entry point for beacon events from every backend.
// A mutex serializes the upsert-then-detect sequence: backends deliver from
// their own goroutines, and interleaving two sequences could double-report
// the same transition.
type Ingestor struct {
	registry *registry.Registry
	detector *registry.PresenceDetector
	bus      *event.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu sync.Mutex
}

// New creates the ingestion pipeline stage.
func New(reg *registry.Registry, det *registry.PresenceDetector, bus *event.Bus, m *metrics.Metrics, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		registry: reg,
		detector: det,
		bus:      bus,
		metrics:  m,
		logger:   logger,
	}
}

// HandleEvent is the sniffer callback. It never panics outward and never
// blocks on downstream delivery beyond the synchronous bus handlers.
func (i *Ingestor) HandleEvent(ev sniffer.BeaconEvent) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("ingest panic",
				zap.String("mac", ev.MACAddress),
				zap.String("source", ev.Source),
				zap.Any("panic", r),
			)
		}
	}()

	ctx := context.Background()

	i.mu.Lock()
	device, err := i.registry.UpsertDevice(ctx, ev)
	if err != nil {
		i.mu.Unlock()
		i.metrics.IngestError()
		i.logger.Warn("dropping beacon event",
			zap.String("mac", ev.MACAddress),
			zap.String("source", ev.Source),
			zap.Error(err),
		)
		return
	}
	transitions, err := i.detector.DetectChanges(ctx)
	i.mu.Unlock()

	i.metrics.BeaconEvent(ev.Source)
	i.logger.Debug("beacon ingested",
		zap.String("mac", device.MACAddress),
		zap.String("source", ev.Source),
		zap.Int("signal", ev.SignalStrength),
	)

	if err != nil {
		// Transitions recorded before the failure still arrive below; the
		// detector will not report them again.
		i.logger.Error("presence detection failed", zap.Error(err))
	}

	// Publish outside the lock: bus handlers may do outbound HTTP and must
	// not stall ingestion from other backends.
	for _, tr := range transitions {
		i.metrics.PresenceTransition(string(tr.EventType))
		topic := TopicArrive
		if tr.EventType == models.PresenceDepart {
			topic = TopicDepart
		}
		i.bus.Publish(ctx, event.Event{
			Topic:     topic,
			Source:    "ingest",
			Timestamp: tr.Timestamp,
			Payload:   tr,
		})
	}
}
