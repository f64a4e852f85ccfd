// Package models holds the shared persistent record types used by the
// registry, persona, and alert components.
package models

import "time"

// Classification buckets a device by how often and how strongly it is seen.
type Classification string

const (
	ClassificationResident Classification = "resident"
	ClassificationFrequent Classification = "frequent"
	ClassificationPasserby Classification = "passerby"
	ClassificationUnknown  Classification = "unknown"
)

// Device is a tracked WiFi/wired device, keyed by its canonical MAC address.
type Device struct {
	MACAddress     string         `json:"mac_address"`
	DisplayName    string         `json:"display_name,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
	Vendor         string         `json:"vendor,omitempty"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	SignalStrength int            `json:"signal_strength"` // latest dBm
	VisitCount     int            `json:"visit_count"`
	Classification Classification `json:"classification"`
	IsRandomized   bool           `json:"is_randomized_mac"`
	APName         string         `json:"ap_name,omitempty"`
	SSID           string         `json:"ssid,omitempty"`
}

// Name returns the best human-readable label for the device:
// display name, then hostname, then vendor, then the MAC itself.
func (d *Device) Name() string {
	switch {
	case d.DisplayName != "":
		return d.DisplayName
	case d.Hostname != "":
		return d.Hostname
	case d.Vendor != "":
		return d.Vendor
	}
	return d.MACAddress
}

// PresenceEvent is the direction of a presence transition.
type PresenceEvent string

const (
	PresenceArrive PresenceEvent = "arrive"
	PresenceDepart PresenceEvent = "depart"
)

// PresenceLog is one append-only arrive/depart transition record.
type PresenceLog struct {
	ID         string        `json:"id"`
	MACAddress string        `json:"mac_address"`
	EventType  PresenceEvent `json:"event_type"`
	Timestamp  time.Time     `json:"timestamp"`
}
