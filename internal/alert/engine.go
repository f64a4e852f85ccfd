package alert

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hearthwatch/internal/persona"
	"hearthwatch/internal/registry"
	"hearthwatch/pkg/models"
)

// WebhookPayload is the JSON body delivered to a rule's webhook. The
// target URL rides along for the dispatcher but never appears in the body.
type WebhookPayload struct {
	Event     string         `json:"event"` // arrive | depart
	Timestamp string         `json:"timestamp"`
	Device    PayloadDevice  `json:"device"`
	Person    *PayloadPerson `json:"person"` // null when the device is unassigned
	Rule      PayloadRule    `json:"rule"`

	WebhookURL string `json:"-"`
}

// PayloadDevice identifies the device in a webhook body.
type PayloadDevice struct {
	MACAddress string `json:"mac_address"`
	Name       string `json:"name"`
}

// PayloadPerson identifies the owning person in a webhook body.
type PayloadPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PayloadRule identifies the rule that fired.
type PayloadRule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Engine evaluates presence transitions against the rule set.
type Engine struct {
	rules    *Store
	registry *registry.Registry
	personas *persona.Store
	logger   *zap.Logger
}

// NewEngine creates the rule evaluation engine.
func NewEngine(rules *Store, reg *registry.Registry, personas *persona.Store, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, registry: reg, personas: personas, logger: logger}
}

// Evaluate returns one webhook payload per enabled rule the transition
// matches. A rule matches when its trigger covers the event direction and
// its scope covers the device: a person-scoped rule matches any device
// assigned to that person, a MAC-scoped rule matches exactly that device,
// and an unscoped rule matches everything.
func (e *Engine) Evaluate(ctx context.Context, tr models.PresenceLog) ([]WebhookPayload, error) {
	rules, err := e.rules.ListRules(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	device, err := e.registry.GetDevice(ctx, tr.MACAddress)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Transition for a row that was deleted underneath us.
			return nil, nil
		}
		return nil, err
	}
	owner, err := e.personas.PersonForDevice(ctx, tr.MACAddress)
	if err != nil {
		return nil, err
	}

	var payloads []WebhookPayload
	for _, rule := range rules {
		if !rule.Trigger.Matches(tr.EventType) {
			continue
		}
		switch {
		case rule.PersonID != "":
			if owner == nil || owner.ID != rule.PersonID {
				continue
			}
		case rule.MACAddress != "":
			if rule.MACAddress != tr.MACAddress {
				continue
			}
		}

		payload := WebhookPayload{
			Event:     string(tr.EventType),
			Timestamp: tr.Timestamp.UTC().Format(time.RFC3339),
			Device: PayloadDevice{
				MACAddress: device.MACAddress,
				Name:       device.Name(),
			},
			Rule:       PayloadRule{ID: rule.ID, Name: rule.Name},
			WebhookURL: rule.WebhookURL,
		}
		if owner != nil {
			payload.Person = &PayloadPerson{ID: owner.ID, Name: owner.Name}
		}
		payloads = append(payloads, payload)

		e.logger.Debug("alert rule matched",
			zap.String("rule", rule.Name),
			zap.String("mac", tr.MACAddress),
			zap.String("event", string(tr.EventType)),
		)
	}
	return payloads, nil
}
