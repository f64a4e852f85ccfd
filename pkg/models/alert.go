package models

import "time"

// TriggerType selects which presence transitions an alert rule fires on.
type TriggerType string

const (
	TriggerArrive TriggerType = "arrive"
	TriggerDepart TriggerType = "depart"
	TriggerBoth   TriggerType = "both"
)

// Matches reports whether the trigger covers the given presence event.
func (t TriggerType) Matches(event PresenceEvent) bool {
	switch t {
	case TriggerArrive:
		return event == PresenceArrive
	case TriggerDepart:
		return event == PresenceDepart
	case TriggerBoth:
		return true
	}
	return false
}

// AlertRule fires a webhook when a matching presence transition occurs.
// PersonID and MACAddress narrow the match: if PersonID is set the rule
// targets that person's devices and MACAddress is ignored; if only
// MACAddress is set the rule targets that device; if neither is set the
// rule matches every device.
type AlertRule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Trigger    TriggerType `json:"trigger_type"`
	PersonID   string      `json:"person_id,omitempty"`
	MACAddress string      `json:"mac_address,omitempty"`
	WebhookURL string      `json:"webhook_url"`
	Enabled    bool        `json:"enabled"`
	CreatedAt  time.Time   `json:"created_at"`
}
