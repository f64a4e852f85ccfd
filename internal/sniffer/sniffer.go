// Package sniffer defines the capture-backend contract and its
// implementations. Each backend observes WiFi/wired device sightings and
// pushes them to registered observers as BeaconEvents; it knows nothing
// about the registry or the alert pipeline downstream.
package sniffer

import (
	"context"
	"time"
)

// Source tags identifying which backend (or sub-channel) produced an event.
const (
	SourceRuckus      = "ruckus"
	SourceRuckusRogue = "ruckus_rogue"
	SourceRuckusEvent = "ruckus_event"
	SourceOPNsense    = "opnsense"
	SourceMonitor     = "monitor"
	SourceGLiNet      = "glinet"
	SourceMQTT        = "mqtt"
	SourceMock        = "mock"
)

// NoSignal is the sentinel signal strength meaning "no RF data available";
// it is emitted by wired/DHCP sources and must never overwrite a real dBm
// reading in the registry.
const NoSignal = 0

// BeaconEvent is a single observed sighting of a device. It is ephemeral:
// produced by a backend, folded into the device registry, and discarded.
type BeaconEvent struct {
	MACAddress     string    // backend-supplied form; the registry normalizes
	SignalStrength int       // dBm (negative, e.g. -45); 0 = NoSignal sentinel
	SSID           string    // from probe request or association, if available
	Hostname       string    // from DHCP lease, if available
	APName         string    // controller-reported AP, if available
	Timestamp      time.Time // UTC
	Source         string
}

// Callback receives beacon events. Callbacks fire synchronously on the
// backend's own goroutine and must not block.
type Callback func(event BeaconEvent)

// Sniffer is the contract every capture backend implements. Start is
// non-blocking and spawns the backend's goroutine; Stop cancels it and
// waits for completion before returning, so no capture outlives Stop.
type Sniffer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnEvent(cb Callback)
}
