package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hearthwatch/pkg/models"
)

// PresenceDetector derives arrive/depart transitions by comparing the set
// of currently present devices against the set from the previous check. A
// device is present while its last sighting is within the grace period;
// the grace period absorbs the gaps between sniffer polls so a missed poll
// does not read as a departure.
type PresenceDetector struct {
	registry *Registry
	grace    time.Duration
	logger   *zap.Logger
	record   func(context.Context, models.PresenceLog) error

	mu      sync.Mutex
	present map[string]struct{}
}

// NewPresenceDetector creates a detector over the registry. The first
// DetectChanges call reports every present device as an arrival.
func NewPresenceDetector(r *Registry, grace time.Duration, logger *zap.Logger) *PresenceDetector {
	if grace <= 0 {
		grace = 3 * time.Minute
	}
	return &PresenceDetector{
		registry: r,
		grace:    grace,
		logger:   logger,
		record:   r.LogPresenceChange,
		present:  make(map[string]struct{}),
	}
}

// Grace returns the configured grace period.
func (p *PresenceDetector) Grace() time.Duration {
	return p.grace
}

// DetectChanges diffs current presence against the previous check, records
// each transition in the presence log, and returns the transitions. Calling
// it again with no sightings in between returns nothing: transitions are
// edges, not levels. On a write failure the transitions recorded so far are
// returned alongside the error; they will not be reported again.
func (p *PresenceDetector) DetectChanges(ctx context.Context) ([]models.PresenceLog, error) {
	devices, err := p.registry.PresentDevices(ctx, p.grace)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	current := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		current[d.MACAddress] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var transitions []models.PresenceLog
	for mac := range current {
		if _, was := p.present[mac]; !was {
			transitions = append(transitions, models.PresenceLog{
				ID:         uuid.NewString(),
				MACAddress: mac,
				EventType:  models.PresenceArrive,
				Timestamp:  now,
			})
		}
	}
	for mac := range p.present {
		if _, still := current[mac]; !still {
			transitions = append(transitions, models.PresenceLog{
				ID:         uuid.NewString(),
				MACAddress: mac,
				EventType:  models.PresenceDepart,
				Timestamp:  now,
			})
		}
	}

	// The in-memory set tracks each transition as soon as it is recorded,
	// so a write failure partway through does not re-emit the transitions
	// that already made it into the log on the next pass.
	for i, tr := range transitions {
		if err := p.record(ctx, tr); err != nil {
			return transitions[:i], err
		}
		switch tr.EventType {
		case models.PresenceArrive:
			p.present[tr.MACAddress] = struct{}{}
		case models.PresenceDepart:
			delete(p.present, tr.MACAddress)
		}
		p.logger.Info("presence transition",
			zap.String("mac", tr.MACAddress),
			zap.String("event", string(tr.EventType)),
		)
	}

	p.present = current
	return transitions, nil
}
