package sniffer

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

var _ Sniffer = (*MonitorSniffer)(nil)

// MonitorConfig configures the local monitor-mode capture backend.
type MonitorConfig struct {
	Interface string
}

// MonitorSniffer captures probe requests on a local wireless interface that
// is already in monitor mode, by running tcpdump and decoding its pcap
// output. This sees devices that never join any network.
type MonitorSniffer struct {
	emitter
	lifecycle

	cfg    MonitorConfig
	logger *zap.Logger
}

// NewMonitorSniffer creates the local capture backend. The interface name
// is validated at Start, not here.
func NewMonitorSniffer(cfg MonitorConfig, logger *zap.Logger) *MonitorSniffer {
	return &MonitorSniffer{cfg: cfg, logger: logger}
}

func (m *MonitorSniffer) Start(ctx context.Context) error {
	if err := validateInterface(m.cfg.Interface); err != nil {
		return err
	}

	runCtx, ok := m.begin(ctx)
	if !ok {
		return nil
	}

	m.logger.Info("starting monitor sniffer", zap.String("interface", m.cfg.Interface))

	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

func (m *MonitorSniffer) Stop(_ context.Context) error {
	m.logger.Info("stopping monitor sniffer")
	m.end()
	return nil
}

func (m *MonitorSniffer) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if err := m.captureOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("capture ended, restarting",
				zap.String("interface", m.cfg.Interface),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (m *MonitorSniffer) captureOnce(ctx context.Context) error {
	// -U flushes each packet immediately, -w - writes pcap to stdout.
	cmd := exec.CommandContext(ctx, "tcpdump",
		"-i", m.cfg.Interface, "-U", "-w", "-", probeRequestFilter)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open tcpdump pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tcpdump: %w", err)
	}

	streamErr := streamProbeRequests(ctx, stdout, SourceMonitor, m.emit, m.logger)
	waitErr := cmd.Wait()

	if streamErr != nil {
		return streamErr
	}
	if ctx.Err() == nil && waitErr != nil {
		return fmt.Errorf("tcpdump exited: %w", waitErr)
	}
	return nil
}
