package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

// tcpdump filter shared by the local and remote capture backends.
const probeRequestFilter = "type mgt subtype probe-req"

// Linux interface names: up to 15 chars, no shell metacharacters. Both
// capture backends interpolate interface names into commands, so anything
// outside this set is rejected outright.
var ifaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,15}$`)

func validateInterface(name string) error {
	if !ifaceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid interface name %q", name)
	}
	return nil
}

// streamProbeRequests reads a pcap stream until it ends or the context is
// cancelled, emitting one beacon event per decoded probe request. tcpdump
// -w - writes classic pcap framing, which pcapgo reads record by record.
func streamProbeRequests(ctx context.Context, r io.Reader, source string, emit func(BeaconEvent), logger *zap.Logger) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("read pcap stream header: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		probe, err := decodeCapture(data)
		if err != nil {
			// Non-probe frames slip through tcpdump's filter occasionally;
			// only genuinely broken records are worth a log line.
			if !errors.Is(err, errNotProbeRequest) {
				logger.Debug("undecodable capture record", zap.Error(err))
			}
			continue
		}

		emit(BeaconEvent{
			MACAddress:     probe.MAC,
			SignalStrength: probe.Signal,
			SSID:           probe.SSID,
			Timestamp:      ci.Timestamp.UTC(),
			Source:         source,
		})
	}
}
