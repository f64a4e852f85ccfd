package sniffer

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ Sniffer = (*MockSniffer)(nil)

// mockDevice is a synthetic device profile for the generator.
type mockDevice struct {
	mac      string
	name     string
	baseRSSI int
}

// Stable devices (burned-in OUI prefixes), always present.
var mockResidents = []mockDevice{
	{"B8:27:EB:11:22:33", "Home-iPhone", -42},
	{"B8:27:EB:44:55:66", "Living-Room-TV", -35},
	{"B8:27:EB:77:88:99", "Work-Laptop", -50},
}

// Visitors appear intermittently.
var mockVisitors = []mockDevice{
	{"DC:A6:32:11:22:33", "Guest-Phone", -60},
	{"DC:A6:32:44:55:66", "Neighbor-Tablet", -72},
}

// Locally administered MACs (randomized; 0x02 bit of the first octet set).
var mockRandomMACs = []string{
	"FA:12:34:56:78:9A",
	"F2:AB:CD:EF:01:23",
	"FE:99:88:77:66:55",
}

// MockSniffer generates fake presence events for development and tests:
// a mix of stable residents, intermittent visitors, and randomized-MAC
// passersby with weak signal.
type MockSniffer struct {
	emitter
	lifecycle

	pollInterval time.Duration
	logger       *zap.Logger
	rng          *rand.Rand
}

// NewMockSniffer creates a synthetic event generator.
func NewMockSniffer(pollInterval time.Duration, logger *zap.Logger) *MockSniffer {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &MockSniffer{
		pollInterval: pollInterval,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockSniffer) Start(ctx context.Context) error {
	runCtx, ok := m.begin(ctx)
	if !ok {
		return nil
	}

	m.logger.Info("starting mock sniffer", zap.Duration("interval", m.pollInterval))

	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

func (m *MockSniffer) Stop(_ context.Context) error {
	m.logger.Info("stopping mock sniffer")
	m.end()
	return nil
}

func (m *MockSniffer) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		m.tick(time.Now().UTC())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *MockSniffer) tick(now time.Time) {
	// Residents: always present with slight signal variation.
	for _, d := range mockResidents {
		m.emit(BeaconEvent{
			MACAddress:     d.mac,
			SignalStrength: d.baseRSSI + m.rng.Intn(11) - 5,
			SSID:           "HomeNetwork",
			Timestamp:      now,
			Source:         SourceMock,
		})
	}

	// Visitors: roughly 40% of ticks.
	for _, d := range mockVisitors {
		if m.rng.Float64() < 0.4 {
			m.emit(BeaconEvent{
				MACAddress:     d.mac,
				SignalStrength: d.baseRSSI + m.rng.Intn(17) - 8,
				SSID:           "HomeNetwork",
				Timestamp:      now,
				Source:         SourceMock,
			})
		}
	}

	// Randomized MACs: occasional passersby with weak signal.
	if m.rng.Float64() < 0.3 {
		m.emit(BeaconEvent{
			MACAddress:     mockRandomMACs[m.rng.Intn(len(mockRandomMACs))],
			SignalStrength: -90 + m.rng.Intn(16), // -90..-75
			Timestamp:      now,
			Source:         SourceMock,
		})
	}
}
