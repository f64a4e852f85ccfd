package sniffer

import (
	"errors"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// errNotProbeRequest marks frames that decoded fine but are not probe
// requests. tcpdump filters before us, but a few stray management frames
// per capture are normal.
var errNotProbeRequest = errors.New("not a probe request")

// probeRequest is the decoded interesting part of one captured frame.
type probeRequest struct {
	MAC    string
	SSID   string
	Signal int
}

// decodeCapture parses one radiotap-linked capture record into a probe
// request. The signal is the radiotap dBm antenna signal when the capture
// hardware reported one, NoSignal otherwise.
func decodeCapture(data []byte) (probeRequest, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeRadioTap, gopacket.NoCopy)

	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		return probeRequest{}, errors.New("no 802.11 header in capture record")
	}
	if dot11.Type != layers.Dot11TypeMgmtProbeReq {
		return probeRequest{}, errNotProbeRequest
	}

	// Address 2 is the transmitter: the probing device itself.
	probe := probeRequest{
		MAC:    strings.ToUpper(dot11.Address2.String()),
		Signal: NoSignal,
	}
	if rt, ok := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap); ok && rt.Present.DBMAntennaSignal() {
		probe.Signal = int(rt.DBMAntennaSignal)
	}
	for _, l := range packet.Layers() {
		if ie, ok := l.(*layers.Dot11InformationElement); ok && ie.ID == layers.Dot11InformationElementIDSSID {
			probe.SSID = string(ie.Info)
			break
		}
	}
	return probe, nil
}
